package preferences

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"safecircle/internal/notification/models"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/sentinel"
	"safecircle/pkg/platform/tx"
)

// Store reads preferences owned by the user profile. A user without a
// record yields sentinel.ErrNotFound.
type Store interface {
	GetPreferences(ctx context.Context, userID id.UserID) (*models.Preferences, error)
}

// Resolver loads preferences and never fails closed: missing records and
// store errors both resolve to defaults.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{store: store, logger: logger}
}

func (r *Resolver) Load(ctx context.Context, userID id.UserID) *models.Preferences {
	if r == nil || r.store == nil {
		return models.DefaultPreferences(userID)
	}
	prefs, err := r.store.GetPreferences(ctx, userID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return models.DefaultPreferences(userID)
	case err != nil:
		r.logger.WarnContext(ctx, "preferences unavailable, using defaults",
			"user_id", userID.String(),
			"error", err,
		)
		return models.DefaultPreferences(userID)
	case prefs == nil:
		return models.DefaultPreferences(userID)
	}
	return prefs
}

// InMemoryStore is used in tests and single-process deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	prefs map[id.UserID]*models.Preferences
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{prefs: make(map[id.UserID]*models.Preferences)}
}

func (s *InMemoryStore) GetPreferences(_ context.Context, userID id.UserID) (*models.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[userID]
	if !ok {
		return nil, fmt.Errorf("preferences for %s: %w", userID, sentinel.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// Put replaces a user's preferences.
func (s *InMemoryStore) Put(_ context.Context, prefs *models.Preferences) error {
	if prefs == nil {
		return errors.New("preferences are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *prefs
	s.prefs[prefs.UserID] = &cp
	return nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetPreferences(ctx context.Context, userID id.UserID) (*models.Preferences, error) {
	var body []byte
	err := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT body FROM notification_preferences WHERE user_id = $1`, userID.String(),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("preferences for %s: %w", userID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	var prefs models.Preferences
	if err := json.Unmarshal(body, &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	prefs.UserID = userID
	return &prefs, nil
}

func (s *PostgresStore) Put(ctx context.Context, prefs *models.Preferences) error {
	if prefs == nil {
		return errors.New("preferences are required")
	}
	body, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, body, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		prefs.UserID.String(), body, prefs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put preferences: %w", err)
	}
	return nil
}
