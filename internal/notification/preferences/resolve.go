// Package preferences turns stored notification preferences into a delivery
// decision for one payload on one channel.
package preferences

import (
	"time"

	escmodels "safecircle/internal/escalation/models"
	"safecircle/internal/notification/models"
)

// Drop reasons reported in Decision.Reason.
const (
	ReasonTypeDisabled    = "type_disabled"
	ReasonContextDisabled = "context_disabled"
	ReasonLevelDisabled   = "level_disabled"
	ReasonChannelDisabled = "channel_disabled"
)

// Decision is the outcome of Resolve. Allowed=false is an authoritative
// opt-out. InQuietHours is set only for windows the type does not bypass.
type Decision struct {
	Allowed bool
	// BypassQuietHours is set when the channel exempts the type.
	BypassQuietHours bool
	InQuietHours     bool
	// QuietUntil is when the latest active window ends.
	QuietUntil time.Time
	Reason     string
}

// Resolve is pure. A nil prefs behaves as DefaultPreferences: everything
// enabled and no quiet hours.
func Resolve(prefs *models.Preferences, t models.Type, ctx escmodels.Context, level escmodels.Level, ch models.Channel, now time.Time) Decision {
	if prefs == nil {
		return Decision{Allowed: true}
	}
	switch {
	case !prefs.TypeEnabled(t):
		return Decision{Reason: ReasonTypeDisabled}
	case !prefs.ContextEnabled(ctx):
		return Decision{Reason: ReasonContextDisabled}
	case !prefs.LevelEnabled(level):
		return Decision{Reason: ReasonLevelDisabled}
	case !prefs.ChannelEnabled(ch):
		return Decision{Reason: ReasonChannelDisabled}
	}

	d := Decision{Allowed: true}
	if cp, ok := prefs.Channels[ch]; ok && cp.QuietHours != nil {
		d.BypassQuietHours = cp.QuietHours.Bypasses(t)
	}
	local := now.In(location(prefs.Timezone))
	for _, q := range quietWindows(prefs, ch) {
		if q.Bypasses(t) {
			continue
		}
		w, err := parseWindow(q)
		if err != nil {
			continue
		}
		if in, until := w.active(local); in {
			d.InQuietHours = true
			if until.After(d.QuietUntil) {
				d.QuietUntil = until
			}
		}
	}
	return d
}

// InQuietHours reports whether ch is inside any quiet window at now,
// regardless of notification type.
func InQuietHours(prefs *models.Preferences, ch models.Channel, now time.Time) (bool, time.Time) {
	if prefs == nil {
		return false, time.Time{}
	}
	local := now.In(location(prefs.Timezone))
	var (
		quiet bool
		until time.Time
	)
	for _, q := range quietWindows(prefs, ch) {
		w, err := parseWindow(q)
		if err != nil {
			continue
		}
		if in, end := w.active(local); in {
			quiet = true
			if end.After(until) {
				until = end
			}
		}
	}
	return quiet, until
}

func quietWindows(prefs *models.Preferences, ch models.Channel) []*models.QuietHours {
	var out []*models.QuietHours
	if cp, ok := prefs.Channels[ch]; ok && cp.QuietHours != nil {
		out = append(out, cp.QuietHours)
	}
	if prefs.DoNotDisturb != nil {
		out = append(out, prefs.DoNotDisturb)
	}
	return out
}
