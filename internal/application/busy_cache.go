package application

import (
	"sync"
	"time"

	"github.com/example/leasing-assistant/internal/calendar"
)

// busyCache keeps recent external busy lookups so repeated read-only
// availability queries over the same window do not each call the calendar.
// Booking decisions never read it.
type busyCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[busyCacheKey]busyCacheEntry
}

type busyCacheKey struct {
	from int64
	to   int64
}

type busyCacheEntry struct {
	events    []calendar.Event
	expiresAt time.Time
}

func newBusyCache(ttl time.Duration, maxEntries int, now func() time.Time) *busyCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &busyCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[busyCacheKey]busyCacheEntry),
	}
}

func keyFor(from, to time.Time) busyCacheKey {
	return busyCacheKey{from: from.UnixNano(), to: to.UnixNano()}
}

func (c *busyCache) Get(from, to time.Time) ([]calendar.Event, bool) {
	if c == nil {
		return nil, false
	}
	key := keyFor(from, to)
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cloneEvents(entry.events), true
}

func (c *busyCache) Store(from, to time.Time, events []calendar.Event) {
	if c == nil {
		return
	}
	cloned := cloneEvents(events)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[keyFor(from, to)] = busyCacheEntry{events: cloned, expiresAt: expiry}
}

func (c *busyCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[busyCacheKey]busyCacheEntry)
	c.mu.Unlock()
}

func (c *busyCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *busyCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneEvents(events []calendar.Event) []calendar.Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]calendar.Event, len(events))
	copy(out, events)
	return out
}
