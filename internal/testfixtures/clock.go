package testfixtures

import (
	"sync"
	"time"
)

// Edmonton is the display zone the scheduling tests run in.
var Edmonton = mustLoad("America/Edmonton")

// referenceTime is Monday 2026-03-02 09:15:22 in Edmonton.
var referenceTime = time.Date(2026, time.March, 2, 9, 15, 22, 0, Edmonton)

// ReferenceTime returns the canonical "now" used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Local builds an instant from wall-clock fields in the Edmonton zone.
func Local(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, Edmonton)
}

// OnReferenceDay returns hh:mm local on the reference Monday.
func OnReferenceDay(hour, minute int) time.Time {
	return Local(2026, time.March, 2, hour, minute)
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Clock is a settable time source safe for concurrent readers.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock set to start, or to ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start.UTC()}
}

// Now returns the clock's instant in UTC.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for injection into services.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}
