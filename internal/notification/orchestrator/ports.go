package orchestrator

import (
	"context"

	"safecircle/internal/notification/models"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks RecordStore,PreferenceStore,DigestQueue,AuditPublisher

// RecordStore persists NotificationRecords. Create fails with
// sentinel.ErrConflict for a repeated dedup key.
type RecordStore interface {
	Create(ctx context.Context, r *models.Record) error
	GetByID(ctx context.Context, notificationID id.NotificationID) (*models.Record, error)
	Update(ctx context.Context, notificationID id.NotificationID, fn func(*models.Record) error) (*models.Record, error)
	ListByUser(ctx context.Context, userID id.UserID, limit int) ([]*models.Record, error)
	ListFailed(ctx context.Context, limit int) ([]*models.Record, error)
}

// PreferenceStore reads user preferences; a missing user yields
// sentinel.ErrNotFound.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID id.UserID) (*models.Preferences, error)
}

// DigestQueue holds deferred items per user in enqueue order.
type DigestQueue interface {
	Enqueue(ctx context.Context, userID id.UserID, item models.DigestItem) error
	Drain(ctx context.Context, userID id.UserID) ([]models.DigestItem, error)
	Requeue(ctx context.Context, userID id.UserID, items []models.DigestItem) error
	Users(ctx context.Context) ([]id.UserID, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
