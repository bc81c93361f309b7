package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitflood/bitflood/internal/config"
)

// Clock is a local time of day in minutes since midnight.
type Clock int

// ParseClock parses a local 24h "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return Clock(h*60 + m), nil
}

func clockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// Window is one bandwidth schedule interval. Limits are KiB/s, 0 means
// unlimited. A window whose Start is later than its End wraps past
// midnight (23:00-07:00).
type Window struct {
	Start    Clock
	End      Clock
	Download int
	Upload   int
}

// Contains reports whether c falls inside the window, honoring
// wrap-around: for Start > End containment is c >= Start || c <= End.
func (w Window) Contains(c Clock) bool {
	if w.Start <= w.End {
		return c >= w.Start && c <= w.End
	}
	return c >= w.Start || c <= w.End
}

// Windows converts configured schedule entries, rejecting unparsable
// clock strings.
func Windows(entries []config.ScheduleEntry) ([]Window, error) {
	windows := make([]Window, 0, len(entries))
	for i, e := range entries {
		start, err := ParseClock(e.Start)
		if err != nil {
			return nil, fmt.Errorf("schedule entry %d: %w", i, err)
		}
		end, err := ParseClock(e.End)
		if err != nil {
			return nil, fmt.Errorf("schedule entry %d: %w", i, err)
		}
		windows = append(windows, Window{
			Start:    start,
			End:      end,
			Download: e.Download,
			Upload:   e.Upload,
		})
	}
	return windows, nil
}

// Pick returns the first window containing now, or nil when none
// match. Callers fall back to their configured default limits on nil.
func Pick(now time.Time, windows []Window) *Window {
	c := clockOf(now)
	for i := range windows {
		if windows[i].Contains(c) {
			return &windows[i]
		}
	}
	return nil
}

// NextBoundary returns the earliest upcoming window edge (start or
// end) strictly after now. With no windows it returns the zero time.
// Limits change exactly at edges, so the applier sleeps until then
// rather than discovering the change on its next coarse tick.
func NextBoundary(now time.Time, windows []Window) time.Time {
	if len(windows) == 0 {
		return time.Time{}
	}
	c := clockOf(now)
	best := Clock(-1)
	for _, w := range windows {
		// An End edge matters one minute after the window closes.
		for _, edge := range []Clock{w.Start, w.End + 1} {
			edge = edge % (24 * 60)
			delta := edge - c
			if delta <= 0 {
				delta += 24 * 60
			}
			if best < 0 || delta < best {
				best = delta
			}
		}
	}
	day := now.Truncate(time.Minute)
	return day.Add(time.Duration(best) * time.Minute)
}
