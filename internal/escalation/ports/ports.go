// Package ports declares the collaborators the escalation facade depends on.
package ports

import (
	"context"

	"safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Store,Dispatcher,EventPublisher,AuditPublisher

// Store persists escalations with optimistic concurrency. Save compares
// event.Version with the stored version (zero for a new event), stores the
// event at Version+1 and updates event.Version; a stale base version fails
// with sentinel.ErrConflict. GetByID fails with sentinel.ErrNotFound.
//
// Subscriptions receive committed snapshots after each successful Save.
// No callback runs after the returned unsubscribe function returns.
type Store interface {
	GetByID(ctx context.Context, escalationID id.EscalationID) (*models.EscalationEvent, error)
	Save(ctx context.Context, event *models.EscalationEvent) error
	ListInvolvingUser(ctx context.Context, userID id.UserID) ([]*models.EscalationEvent, error)
	SubscribeEscalation(escalationID id.EscalationID, fn func(*models.EscalationEvent)) (unsubscribe func())
	SubscribeUserEscalations(userID id.UserID, fn func(*models.EscalationEvent)) (unsubscribe func())
}

// Dispatcher accepts committed domain events for asynchronous notification.
// Dispatch must not block on delivery and must preserve the order of events
// for the same escalation across calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []models.DomainEvent)
}

// EventPublisher streams committed domain events to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, events []models.DomainEvent) error
}

// AuditPublisher records accountability events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
