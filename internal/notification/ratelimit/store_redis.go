package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"safecircle/pkg/platform/clock"
)

// slidingWindowScript trims the sorted set to the window, then adds the
// attempt when under the limit or when forced. Scores are unix millis.
//
// KEYS[1] key
// ARGV    now, window, limit, member, force
// returns {allowed, count, resetAt}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local force = ARGV[5] == "1"

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local allowed = 0
if force or count < limit then
	redis.call("ZADD", key, now, member)
	count = count + 1
	allowed = 1
end
redis.call("PEXPIRE", key, window)

local reset = now + window
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// RedisStore shares counters between processes.
type RedisStore struct {
	client redis.UniversalClient
	clock  clock.Clock
	prefix string
}

type RedisOption func(*RedisStore)

func WithClock(c clock.Clock) RedisOption {
	return func(s *RedisStore) { s.clock = c }
}

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, clock: clock.New(), prefix: "ratelimit:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	return s.run(ctx, key, limit, window, false)
}

func (s *RedisStore) Record(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	return s.run(ctx, key, limit, window, true)
}

func (s *RedisStore) run(ctx context.Context, key string, limit int, window time.Duration, force bool) (*Result, error) {
	force1 := "0"
	if force {
		force1 = "1"
	}
	vals, err := slidingWindowScript.Run(ctx, s.client, []string{s.prefix + key},
		s.clock.Now().UnixMilli(), window.Milliseconds(), limit, uuid.NewString(), force1,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("rate limit %s: unexpected script reply %v", key, vals)
	}
	count := int(vals[1])
	return &Result{
		Allowed:   vals[0] == 1,
		Count:     count,
		Remaining: max(limit-count, 0),
		Limit:     limit,
		ResetAt:   time.UnixMilli(vals[2]),
	}, nil
}

func (s *RedisStore) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-window).UnixMilli()
	n, err := s.client.ZCount(ctx, s.prefix+key, "("+strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return int(n), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("rate limit %s: %w", key, err)
	}
	return nil
}
