package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
	if clock.Now().Location() != time.UTC {
		t.Fatalf("expected UTC instants, got %v", clock.Now().Location())
	}
	if got := ReferenceTime().Weekday(); got != time.Monday {
		t.Fatalf("expected the reference day to be a Monday, got %v", got)
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := OnReferenceDay(15, 0)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}

	nowFn := clock.NowFunc()
	clock.Set(start.Add(2 * time.Hour))
	if got := nowFn(); !got.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("expected NowFunc to follow Set, got %v", got)
	}
}
