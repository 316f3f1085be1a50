// Package store persists NotificationRecords.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"safecircle/internal/notification/models"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/sentinel"
)

// Store persists notification records. Create returns sentinel.ErrConflict
// when the id or dedup key already exists. Update applies fn atomically.
type Store interface {
	Create(ctx context.Context, r *models.Record) error
	GetByID(ctx context.Context, notificationID id.NotificationID) (*models.Record, error)
	GetByDedupKey(ctx context.Context, key string) (*models.Record, error)
	Update(ctx context.Context, notificationID id.NotificationID, fn func(*models.Record) error) (*models.Record, error)
	// ListByUser returns newest first; limit <= 0 means no limit.
	ListByUser(ctx context.Context, userID id.UserID, limit int) ([]*models.Record, error)
	// ListFailed returns records with a FAILED or BOUNCED channel, newest first.
	ListFailed(ctx context.Context, limit int) ([]*models.Record, error)
}

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.NotificationID]*models.Record
	byDedup map[string]id.NotificationID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[id.NotificationID]*models.Record),
		byDedup: make(map[string]id.NotificationID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("notification %s: %w", r.ID, sentinel.ErrConflict)
	}
	if _, ok := s.byDedup[r.DedupKey]; ok {
		return fmt.Errorf("notification dedup key %s: %w", r.DedupKey, sentinel.ErrConflict)
	}
	s.records[r.ID] = r.Clone()
	s.byDedup[r.DedupKey] = r.ID
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, notificationID id.NotificationID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[notificationID]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", notificationID, sentinel.ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) GetByDedupKey(_ context.Context, key string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nid, ok := s.byDedup[key]
	if !ok {
		return nil, fmt.Errorf("notification dedup key %s: %w", key, sentinel.ErrNotFound)
	}
	return s.records[nid].Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, notificationID id.NotificationID, fn func(*models.Record) error) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[notificationID]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", notificationID, sentinel.ErrNotFound)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.records[notificationID] = next
	return next.Clone(), nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID, limit int) ([]*models.Record, error) {
	return s.list(limit, func(r *models.Record) bool { return r.UserID == userID }), nil
}

func (s *InMemoryStore) ListFailed(_ context.Context, limit int) ([]*models.Record, error) {
	return s.list(limit, (*models.Record).HasFailure), nil
}

func (s *InMemoryStore) list(limit int, keep func(*models.Record) bool) []*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
