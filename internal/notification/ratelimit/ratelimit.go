// Package ratelimit implements per-user per-channel sliding-window limits.
//
// A key is limited once it holds max attempts strictly newer than
// now-window; the max+1th attempt within the window is refused.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"safecircle/internal/notification/models"
	id "safecircle/pkg/domain"
)

// Result describes a key after an Allow or Record call.
type Result struct {
	Allowed   bool
	Count     int
	Remaining int
	Limit     int
	// ResetAt is when the oldest counted attempt leaves the window.
	ResetAt time.Time
}

// Store keeps sliding-window counters.
type Store interface {
	// Allow counts one attempt if fewer than limit are in the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
	// Record counts one attempt unconditionally.
	Record(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
	Count(ctx context.Context, key string, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}

// IsLimited reports whether another attempt on key would exceed max within
// window. Allowed attempts are counted.
func IsLimited(ctx context.Context, store Store, key string, window time.Duration, max int) (bool, error) {
	res, err := store.Allow(ctx, key, max, window)
	if err != nil {
		return false, err
	}
	return !res.Allowed, nil
}

// DefaultLimits are applied when the user has no override.
var DefaultLimits = map[models.Channel]models.RateLimit{
	models.ChannelWeb:   {Max: 100, Window: time.Hour},
	models.ChannelPush:  {Max: 30, Window: time.Hour},
	models.ChannelEmail: {Max: 20, Window: time.Hour},
	models.ChannelSMS:   {Max: 5, Window: time.Hour},
}

// Limiter applies channel limits to (user, channel) keys.
type Limiter struct {
	store  Store
	limits map[models.Channel]models.RateLimit
}

// NewLimiter merges limits over DefaultLimits.
func NewLimiter(store Store, limits map[models.Channel]models.RateLimit) *Limiter {
	merged := make(map[models.Channel]models.RateLimit, len(DefaultLimits))
	for ch, l := range DefaultLimits {
		merged[ch] = l
	}
	for ch, l := range limits {
		if l.Max > 0 && l.Window > 0 {
			merged[ch] = l
		}
	}
	return &Limiter{store: store, limits: merged}
}

func Key(userID id.UserID, ch models.Channel) string {
	return fmt.Sprintf("notify:%s:%s", userID, ch)
}

// LimitFor returns the user override for ch, falling back to the channel default.
func (l *Limiter) LimitFor(prefs *models.Preferences, ch models.Channel) models.RateLimit {
	if prefs != nil {
		if rl, ok := prefs.RateLimitFor(ch); ok {
			return rl
		}
	}
	return l.limits[ch]
}

// Check counts an attempt for userID on ch. A bypassing attempt is always
// counted and always allowed.
func (l *Limiter) Check(ctx context.Context, userID id.UserID, ch models.Channel, prefs *models.Preferences, bypass bool) (*Result, error) {
	limit := l.LimitFor(prefs, ch)
	key := Key(userID, ch)
	if bypass {
		res, err := l.store.Record(ctx, key, limit.Max, limit.Window)
		if err != nil {
			return nil, err
		}
		res.Allowed = true
		return res, nil
	}
	return l.store.Allow(ctx, key, limit.Max, limit.Window)
}
