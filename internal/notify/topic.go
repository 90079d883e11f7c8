// Package notify is the process-wide booking event topic. Publishing never
// blocks: each subscriber owns a bounded queue that drops its oldest event
// when full.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event types published by the scheduling core.
const (
	BookingCreated = "booking.created"
	BookingChanged = "booking.changed"
)

// DefaultBuffer is the queue length used when Subscribe is given a non-positive size.
const DefaultBuffer = 64

// Event describes a change to a booking.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	BookingID  int64     `json:"booking_id"`
	PropertyID int64     `json:"property_id"`
	SlotStart  time.Time `json:"slot_start"`
	Status     string    `json:"status"`
	Source     string    `json:"source,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher is the narrow interface services depend on.
type Publisher interface {
	Publish(Event)
}

// Topic fans events out to every live subscription.
type Topic struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
	now  func() time.Time
}

// NewTopic creates an empty topic.
func NewTopic() *Topic {
	return &Topic{
		subs: make(map[*Subscription]struct{}),
		now:  time.Now,
	}
}

// Publish stamps the event with an id and time when missing and enqueues it
// on every subscription.
func (t *Topic) Publish(event Event) {
	if t == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = t.now().UTC()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for sub := range t.subs {
		sub.deliver(event)
	}
}

// Subscribe registers a subscription with a queue of the given size.
func (t *Topic) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		topic: t,
		ch:    make(chan Event, buffer),
	}

	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	return sub
}

// Subscribers returns the number of live subscriptions.
func (t *Topic) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

func (t *Topic) remove(sub *Subscription) {
	t.mu.Lock()
	delete(t.subs, sub)
	t.mu.Unlock()
}

// Subscription is one consumer's queue.
type Subscription struct {
	topic   *Topic
	ch      chan Event
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// C returns the receive side of the queue. It is closed by Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes its channel. It is safe to
// call more than once.
func (s *Subscription) Close() {
	s.topic.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// deliver enqueues event, evicting the oldest queued event when full.
func (s *Subscription) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- event:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}
