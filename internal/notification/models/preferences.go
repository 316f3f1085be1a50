package models

import (
	"slices"
	"time"

	escmodels "safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
)

// RateLimit caps deliveries on one channel within a sliding window.
type RateLimit struct {
	Max    int           `json:"max"`
	Window time.Duration `json:"window"`
}

// QuietHours is a daily window in the user's local time. Start and End are
// "HH:MM"; Start after End spans midnight. Days is a weekday bitmask with
// bit 0 for Sunday; zero means every day. For a window spanning midnight the
// part after midnight belongs to the day the window started.
type QuietHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  uint8  `json:"days,omitempty"`
	// BypassTypes are delivered even inside the window.
	BypassTypes []Type `json:"bypass_types,omitempty"`
}

type ChannelPreference struct {
	// Enabled is nil when the user never set it, which counts as enabled.
	Enabled    *bool       `json:"enabled,omitempty"`
	QuietHours *QuietHours `json:"quiet_hours,omitempty"`
	RateLimit  *RateLimit  `json:"rate_limit,omitempty"`
}

type DigestPreference struct {
	Enabled   bool            `json:"enabled"`
	Frequency DigestFrequency `json:"frequency,omitempty"`
}

// Preferences are edited by their owner. A missing key in any map means
// enabled; only an explicit false opts out.
type Preferences struct {
	UserID   id.UserID                     `json:"user_id"`
	Timezone string                        `json:"timezone,omitempty"`
	Channels map[Channel]ChannelPreference `json:"channels,omitempty"`
	Types    map[Type]bool                 `json:"types,omitempty"`
	Contexts map[escmodels.Context]bool    `json:"contexts,omitempty"`
	Levels   map[escmodels.Level]bool      `json:"levels,omitempty"`
	Digest   DigestPreference              `json:"digest"`
	// DoNotDisturb applies to every channel on top of per-channel quiet hours.
	DoNotDisturb *QuietHours `json:"do_not_disturb,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// DefaultPreferences enables everything with no quiet hours and no digest.
func DefaultPreferences(userID id.UserID) *Preferences {
	return &Preferences{UserID: userID}
}

func (p *Preferences) ChannelEnabled(ch Channel) bool {
	cp, ok := p.Channels[ch]
	return !ok || cp.Enabled == nil || *cp.Enabled
}

func (p *Preferences) TypeEnabled(t Type) bool {
	enabled, ok := p.Types[t]
	return !ok || enabled
}

func (p *Preferences) ContextEnabled(c escmodels.Context) bool {
	enabled, ok := p.Contexts[c]
	return !ok || enabled
}

func (p *Preferences) LevelEnabled(l escmodels.Level) bool {
	enabled, ok := p.Levels[l]
	return !ok || enabled
}

// RateLimitFor returns the user's override for ch, if any.
func (p *Preferences) RateLimitFor(ch Channel) (RateLimit, bool) {
	cp, ok := p.Channels[ch]
	if !ok || cp.RateLimit == nil || cp.RateLimit.Max <= 0 || cp.RateLimit.Window <= 0 {
		return RateLimit{}, false
	}
	return *cp.RateLimit, true
}

// Bypasses reports whether t is exempt from this window.
func (q *QuietHours) Bypasses(t Type) bool {
	return slices.Contains(q.BypassTypes, t)
}

func Bool(v bool) *bool { return &v }
