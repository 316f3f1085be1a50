package ratelimit

import (
	"context"
	"sync"
	"time"

	"safecircle/pkg/platform/clock"
)

// InMemoryStore implements Store with per-key timestamp slices. It is not
// shared between processes; use RedisStore for that.
type InMemoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	windows map[string]*slidingWindow
}

type slidingWindow struct {
	timestamps []time.Time
}

func NewInMemoryStore(c clock.Clock) *InMemoryStore {
	if c == nil {
		c = clock.New()
	}
	return &InMemoryStore{clock: c, windows: make(map[string]*slidingWindow)}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	return s.add(key, limit, window, false), nil
}

func (s *InMemoryStore) Record(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	return s.add(key, limit, window, true), nil
}

func (s *InMemoryStore) add(key string, limit int, window time.Duration, force bool) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	sw := s.windows[key]
	if sw == nil {
		sw = &slidingWindow{}
		s.windows[key] = sw
	}
	sw.cleanup(now, window)

	allowed := force || len(sw.timestamps) < limit
	if allowed {
		sw.timestamps = append(sw.timestamps, now)
	}
	return &Result{
		Allowed:   allowed,
		Count:     len(sw.timestamps),
		Remaining: max(limit-len(sw.timestamps), 0),
		Limit:     limit,
		ResetAt:   sw.resetAt(now, window),
	}
}

func (s *InMemoryStore) Count(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw := s.windows[key]
	if sw == nil {
		return 0, nil
	}
	sw.cleanup(s.clock.Now(), window)
	if len(sw.timestamps) == 0 {
		delete(s.windows, key)
		return 0, nil
	}
	return len(sw.timestamps), nil
}

func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// cleanup keeps only timestamps strictly after now-window.
func (sw *slidingWindow) cleanup(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

func (sw *slidingWindow) resetAt(now time.Time, window time.Duration) time.Time {
	if len(sw.timestamps) == 0 {
		return now.Add(window)
	}
	return sw.timestamps[0].Add(window)
}
