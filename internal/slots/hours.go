package slots

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidClock is returned for wall-clock strings that are not "HH:MM".
var ErrInvalidClock = errors.New("slots: invalid wall clock")

// WallClock is a local time of day, stored as minutes after midnight.
type WallClock int

// ParseClock parses "HH:MM" in 24-hour form. "24:00" is accepted as end of day.
func ParseClock(value string) (WallClock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	if hour == 24 && minute == 0 {
		return WallClock(24 * 60), nil
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return WallClock(hour*60 + minute), nil
}

// String formats the clock as "HH:MM".
func (c WallClock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// DayWindow is the open window of a single weekday.
type DayWindow struct {
	Start WallClock
	End   WallClock
}

// ParseDayWindow builds a window from "HH:MM" strings.
func ParseDayWindow(start, end string) (DayWindow, error) {
	s, err := ParseClock(start)
	if err != nil {
		return DayWindow{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return DayWindow{}, err
	}
	return DayWindow{Start: s, End: e}, nil
}

// Closed reports whether the window admits no instant. "00:00"-"00:00" is the
// canonical closed day.
func (w DayWindow) Closed() bool {
	return w.End <= w.Start
}

// Contains reports whether the time of day lies in [Start, End).
func (w DayWindow) Contains(c WallClock) bool {
	return !w.Closed() && c >= w.Start && c < w.End
}

// OpenHours maps weekdays to their open window. A missing weekday is closed.
type OpenHours map[time.Weekday]DayWindow

// DefaultOpenHours is used when no settings have been stored:
// weekdays 09:00-17:00, Saturday 10:00-14:00, Sunday closed.
func DefaultOpenHours() OpenHours {
	weekday := DayWindow{Start: 9 * 60, End: 17 * 60}
	return OpenHours{
		time.Monday:    weekday,
		time.Tuesday:   weekday,
		time.Wednesday: weekday,
		time.Thursday:  weekday,
		time.Friday:    weekday,
		time.Saturday:  {Start: 10 * 60, End: 14 * 60},
		time.Sunday:    {},
	}
}

// InOpenHours converts t to wall time in loc and reports whether it falls in
// that weekday's window.
func InOpenHours(t time.Time, hours OpenHours, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	window, ok := hours[local.Weekday()]
	if !ok {
		return false
	}
	return window.Contains(WallClock(local.Hour()*60 + local.Minute()))
}
