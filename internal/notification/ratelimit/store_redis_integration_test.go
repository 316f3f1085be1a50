//go:build integration

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"safecircle/internal/notification/ratelimit"
	"safecircle/pkg/platform/clock"
	"safecircle/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	clock *clock.Fake
	store *ratelimit.RedisStore
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.clock = clock.NewFake(time.Now().Truncate(time.Second))
	s.store = ratelimit.NewRedisStore(s.redis.Client, ratelimit.WithClock(s.clock))
}

func (s *RedisStoreSuite) TestSlidingWindow() {
	s.Run("the 6th attempt within 60s is limited", func() {
		for range 5 {
			limited, err := ratelimit.IsLimited(s.ctx, s.store, "user:sms", time.Minute, 5)
			s.Require().NoError(err)
			s.False(limited)
		}
		limited, err := ratelimit.IsLimited(s.ctx, s.store, "user:sms", time.Minute, 5)
		s.Require().NoError(err)
		s.True(limited)

		n, err := s.store.Count(s.ctx, "user:sms", time.Minute)
		s.Require().NoError(err)
		s.Equal(5, n)
	})

	s.Run("after 61s the key is free", func() {
		s.clock.Advance(61 * time.Second)
		limited, err := ratelimit.IsLimited(s.ctx, s.store, "user:sms", time.Minute, 5)
		s.Require().NoError(err)
		s.False(limited)
	})

	s.Run("record ignores the limit", func() {
		res, err := s.store.Record(s.ctx, "user:push", 0, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(1, res.Count)
		s.Equal(s.clock.Now().Add(time.Minute).UnixMilli(), res.ResetAt.UnixMilli())
	})

	s.Run("reset deletes the key", func() {
		s.Require().NoError(s.store.Reset(s.ctx, "user:push"))
		n, err := s.store.Count(s.ctx, "user:push", time.Minute)
		s.Require().NoError(err)
		s.Zero(n)
	})
}
