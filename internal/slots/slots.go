// Package slots holds the time arithmetic of the showing calendar: the
// 30-minute slot grid in UTC, weekly open hours in a display zone, and
// parsing of requested times.
//
// Every function is pure. Callers inject the current time through a Clock.
package slots

import (
	"time"
)

// Duration is the length of one showing slot.
const Duration = 30 * time.Minute

// Clock returns the current instant.
type Clock func() time.Time

// SystemClock reads the wall clock.
func SystemClock() time.Time {
	return time.Now()
}

// Align floors t to the 30-minute grid in UTC.
func Align(t time.Time) time.Time {
	return t.UTC().Truncate(Duration)
}

// IsAligned reports whether t already sits on the grid.
func IsAligned(t time.Time) bool {
	return Align(t).Equal(t)
}

// SlotOf returns the half-open slot containing t.
func SlotOf(t time.Time) (start, end time.Time) {
	start = Align(t)
	return start, start.Add(Duration)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Enumerate returns the aligned slot starts in [from, to). An unaligned from
// is rounded up to the next grid point.
func Enumerate(from, to time.Time) []time.Time {
	first := Align(from)
	if first.Before(from) {
		first = first.Add(Duration)
	}
	to = to.UTC()

	var starts []time.Time
	for current := first; current.Before(to); current = current.Add(Duration) {
		starts = append(starts, current)
	}
	return starts
}
