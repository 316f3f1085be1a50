package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/sentinel"
)

// InMemoryStore keeps escalations in a map guarded by a single lock. It is
// the default store when no database is configured.
type InMemoryStore struct {
	subscriptions

	mu     sync.RWMutex
	events map[id.EscalationID]*models.EscalationEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		subscriptions: newSubscriptions(),
		events:        make(map[id.EscalationID]*models.EscalationEvent),
	}
}

func (s *InMemoryStore) GetByID(_ context.Context, escalationID id.EscalationID) (*models.EscalationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[escalationID]
	if !ok {
		return nil, fmt.Errorf("escalation %s: %w", escalationID, sentinel.ErrNotFound)
	}
	return e.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, event *models.EscalationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.events[event.ID]
	switch {
	case !ok && event.Version != 0:
		return fmt.Errorf("escalation %s: %w", event.ID, sentinel.ErrNotFound)
	case ok && current.Version != event.Version:
		return fmt.Errorf("escalation %s at version %d, saw %d: %w", event.ID, current.Version, event.Version, sentinel.ErrConflict)
	}

	stored := event.Clone()
	stored.Version = event.Version + 1
	s.events[event.ID] = stored
	event.Version = stored.Version

	// published under the lock so feeds see versions in commit order
	s.publish(stored.Clone())
	return nil
}

func (s *InMemoryStore) ListInvolvingUser(_ context.Context, userID id.UserID) ([]*models.EscalationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.EscalationEvent
	for _, e := range s.events {
		if e.Involves(userID) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
