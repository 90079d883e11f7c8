package application

import (
	"testing"
	"time"

	"github.com/example/leasing-assistant/internal/calendar"
)

func TestBusyCacheReturnsIndependentCopies(t *testing.T) {
	current := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	cache := newBusyCache(time.Minute, 4, func() time.Time { return current })
	from, to := current, current.Add(time.Hour)

	original := []calendar.Event{{ID: "evt-1", ShowAs: calendar.ShowAsBusy}}
	cache.Store(from, to, original)
	original[0].ID = "mutated"

	cached, ok := cache.Get(from, to)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached[0].ID != "evt-1" {
		t.Fatalf("expected stored copy to be unaffected, got %s", cached[0].ID)
	}

	cached[0].ID = "changed"
	again, _ := cache.Get(from, to)
	if again[0].ID != "evt-1" {
		t.Fatalf("expected independent copy on each read, got %s", again[0].ID)
	}

	if _, ok := cache.Get(from, to.Add(time.Minute)); ok {
		t.Fatalf("expected miss for a different window")
	}
}

func TestBusyCacheExpiresAndInvalidates(t *testing.T) {
	current := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	cache := newBusyCache(time.Second, 1, func() time.Time { return current })
	from, to := current, current.Add(time.Hour)

	cache.Store(from, to, []calendar.Event{{ID: "evt-1"}})
	current = current.Add(2 * time.Second)
	if _, ok := cache.Get(from, to); ok {
		t.Fatalf("expected entry to expire")
	}

	cache.Store(from, to, []calendar.Event{{ID: "evt-1"}})
	cache.Store(to, to.Add(time.Hour), []calendar.Event{{ID: "evt-2"}})
	if _, ok := cache.Get(from, to); ok {
		t.Fatalf("expected eviction at capacity")
	}

	cache.Invalidate()
	if _, ok := cache.Get(to, to.Add(time.Hour)); ok {
		t.Fatalf("expected cache to be empty after invalidation")
	}
}
