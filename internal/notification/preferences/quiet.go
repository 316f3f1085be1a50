package preferences

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"safecircle/internal/notification/models"
)

// window is a parsed QuietHours in minutes since local midnight.
type window struct {
	start, end int
	days       uint8
}

func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("quiet hours time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("quiet hours time %q: bad hour", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("quiet hours time %q: bad minute", s)
	}
	return hour*60 + minute, nil
}

func parseWindow(q *models.QuietHours) (window, error) {
	start, err := parseClock(q.Start)
	if err != nil {
		return window{}, err
	}
	end, err := parseClock(q.End)
	if err != nil {
		return window{}, err
	}
	return window{start: start, end: end, days: q.Days}, nil
}

// ValidateQuietHours reports malformed windows. Resolve ignores them.
func ValidateQuietHours(q *models.QuietHours) error {
	if q == nil {
		return nil
	}
	_, err := parseWindow(q)
	return err
}

func (w window) onDay(d time.Weekday) bool {
	return w.days == 0 || w.days&(1<<uint(d)) != 0
}

// active reports whether local falls inside the window and, if so, when the
// window ends. A window with start == end is empty.
func (w window) active(local time.Time) (bool, time.Time) {
	if w.start == w.end {
		return false, time.Time{}
	}
	minute := local.Hour()*60 + local.Minute()
	y, m, d := local.Date()
	endAt := func(dayOffset int) time.Time {
		return time.Date(y, m, d+dayOffset, w.end/60, w.end%60, 0, 0, local.Location())
	}

	if w.start < w.end {
		if minute >= w.start && minute < w.end && w.onDay(local.Weekday()) {
			return true, endAt(0)
		}
		return false, time.Time{}
	}

	// Spans midnight: the early-morning tail belongs to the previous day.
	if minute >= w.start && w.onDay(local.Weekday()) {
		return true, endAt(1)
	}
	if minute < w.end && w.onDay((local.Weekday()+6)%7) {
		return true, endAt(0)
	}
	return false, time.Time{}
}

var locations sync.Map

// location resolves an IANA zone name, falling back to UTC.
func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locations.Store(name, loc)
	return loc
}
