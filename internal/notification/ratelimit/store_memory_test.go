package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"safecircle/internal/notification/models"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/clock"
)

type InMemoryStoreSuite struct {
	suite.Suite
	clock *clock.Fake
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.clock = clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s.store = NewInMemoryStore(s.clock)
	s.ctx = context.Background()
}

// =============================================================================
// Sliding window
// =============================================================================

func (s *InMemoryStoreSuite) TestIsLimited() {
	s.Run("the max+1th attempt in the window is limited", func() {
		for i := range 5 {
			limited, err := IsLimited(s.ctx, s.store, "k:max", time.Minute, 5)
			s.Require().NoError(err)
			s.False(limited, "attempt %d", i+1)
			s.clock.Advance(time.Second)
		}
		limited, err := IsLimited(s.ctx, s.store, "k:max", time.Minute, 5)
		s.Require().NoError(err)
		s.True(limited)
	})

	s.Run("61s after the first attempt the key is free again", func() {
		for range 5 {
			_, err := IsLimited(s.ctx, s.store, "k:roll", time.Minute, 5)
			s.Require().NoError(err)
		}
		limited, _ := IsLimited(s.ctx, s.store, "k:roll", time.Minute, 5)
		s.True(limited)

		s.clock.Advance(61 * time.Second)
		limited, err := IsLimited(s.ctx, s.store, "k:roll", time.Minute, 5)
		s.Require().NoError(err)
		s.False(limited)
	})

	s.Run("an attempt exactly window old no longer counts", func() {
		_, _ = s.store.Allow(s.ctx, "k:edge", 1, time.Minute)
		s.clock.Advance(time.Minute)
		res, err := s.store.Allow(s.ctx, "k:edge", 1, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
	})
}

func (s *InMemoryStoreSuite) TestAllow() {
	s.Run("reports remaining and reset", func() {
		start := s.clock.Now()
		res, err := s.store.Allow(s.ctx, "k:remaining", 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(1, res.Count)
		s.Equal(2, res.Remaining)
		s.Equal(3, res.Limit)
		s.Equal(start.Add(time.Minute), res.ResetAt)
	})

	s.Run("refused attempts are not counted", func() {
		_, _ = s.store.Allow(s.ctx, "k:refused", 1, time.Minute)
		for range 3 {
			res, _ := s.store.Allow(s.ctx, "k:refused", 1, time.Minute)
			s.False(res.Allowed)
		}
		n, err := s.store.Count(s.ctx, "k:refused", time.Minute)
		s.Require().NoError(err)
		s.Equal(1, n)
	})

	s.Run("record counts past the limit", func() {
		_, _ = s.store.Allow(s.ctx, "k:record", 1, time.Minute)
		res, err := s.store.Record(s.ctx, "k:record", 1, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(2, res.Count)
		s.Equal(0, res.Remaining)
	})

	s.Run("reset clears the key", func() {
		_, _ = s.store.Allow(s.ctx, "k:reset", 1, time.Minute)
		s.Require().NoError(s.store.Reset(s.ctx, "k:reset"))
		res, _ := s.store.Allow(s.ctx, "k:reset", 1, time.Minute)
		s.True(res.Allowed)
	})

	s.Run("concurrent attempts never exceed the limit", func() {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for range 50 {
			wg.Go(func() {
				res, err := s.store.Allow(s.ctx, "k:race", 10, time.Minute)
				s.NoError(err)
				if res.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			})
		}
		wg.Wait()
		s.Equal(10, allowed)
	})
}

// =============================================================================
// Channel limiter
// =============================================================================

func (s *InMemoryStoreSuite) TestLimiter() {
	user := id.UserID(uuid.New())

	s.Run("channel defaults apply", func() {
		l := NewLimiter(s.store, nil)
		for range 5 {
			res, err := l.Check(s.ctx, user, models.ChannelSMS, nil, false)
			s.Require().NoError(err)
			s.True(res.Allowed)
		}
		res, err := l.Check(s.ctx, user, models.ChannelSMS, nil, false)
		s.Require().NoError(err)
		s.False(res.Allowed)

		res, _ = l.Check(s.ctx, user, models.ChannelEmail, nil, false)
		s.True(res.Allowed)
	})

	s.Run("bypass is counted but allowed", func() {
		other := id.UserID(uuid.New())
		l := NewLimiter(s.store, map[models.Channel]models.RateLimit{
			models.ChannelPush: {Max: 1, Window: time.Hour},
		})
		res, _ := l.Check(s.ctx, other, models.ChannelPush, nil, false)
		s.True(res.Allowed)
		res, _ = l.Check(s.ctx, other, models.ChannelPush, nil, true)
		s.True(res.Allowed)
		s.Equal(2, res.Count)
		res, _ = l.Check(s.ctx, other, models.ChannelPush, nil, false)
		s.False(res.Allowed)
	})

	s.Run("user override wins over the default", func() {
		other := id.UserID(uuid.New())
		prefs := &models.Preferences{
			UserID: other,
			Channels: map[models.Channel]models.ChannelPreference{
				models.ChannelWeb: {RateLimit: &models.RateLimit{Max: 2, Window: time.Minute}},
			},
		}
		l := NewLimiter(s.store, nil)
		s.Equal(models.RateLimit{Max: 2, Window: time.Minute}, l.LimitFor(prefs, models.ChannelWeb))
		s.Equal(DefaultLimits[models.ChannelPush], l.LimitFor(prefs, models.ChannelPush))

		for range 2 {
			res, _ := l.Check(s.ctx, other, models.ChannelWeb, prefs, false)
			s.True(res.Allowed)
		}
		res, _ := l.Check(s.ctx, other, models.ChannelWeb, prefs, false)
		s.False(res.Allowed)
	})
}
