// Package memory is the audit store used when no database is configured.
package memory

import (
	"context"
	"slices"
	"sync"

	id "safecircle/pkg/domain"
	audit "safecircle/pkg/platform/audit"
)

// InMemoryStore keeps events in append order. Listing filters the log, which
// is fine at the volumes a single process produces without Postgres.
type InMemoryStore struct {
	mu  sync.RWMutex
	log []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	s.log = append(s.log, event)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	return s.filter(func(e audit.Event) bool { return e.UserID == userID }), nil
}

func (s *InMemoryStore) ListByEscalation(_ context.Context, escalationID string) ([]audit.Event, error) {
	if escalationID == "" {
		return []audit.Event{}, nil
	}
	return s.filter(func(e audit.Event) bool { return e.EscalationID == escalationID }), nil
}

func (s *InMemoryStore) filter(keep func(audit.Event) bool) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0, len(s.log))
	for _, e := range s.log {
		if keep(e) {
			out = append(out, e)
		}
	}
	return slices.Clip(out)
}
