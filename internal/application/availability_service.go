package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/leasing-assistant/internal/calendar"
	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/slots"
)

const (
	// MaxBusyEventDuration is the longest external event treated as a
	// conflict; longer events are whole-day markers.
	MaxBusyEventDuration = 12 * time.Hour
	// SuggestionHorizon bounds the search for alternative slots.
	SuggestionHorizon = 72 * time.Hour
)

// AvailabilityService answers which slots of a property are free by
// subtracting manual blocks, active bookings and external busy events from
// the open-hours mask.
type AvailabilityService struct {
	store    AvailabilityStore
	calendar CalendarConnector
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
	cache    *busyCache
}

// NewAvailabilityService constructs the oracle. A nil connector skips the
// external source entirely.
func NewAvailabilityService(store AvailabilityStore, connector CalendarConnector, loc *time.Location, now func() time.Time) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(store, connector, loc, now, nil)
}

// NewAvailabilityServiceWithLogger constructs the oracle with a specified logger.
func NewAvailabilityServiceWithLogger(store AvailabilityStore, connector CalendarConnector, loc *time.Location, now func() time.Time, logger *slog.Logger) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityService{
		store:    store,
		calendar: connector,
		loc:      loc,
		now:      now,
		logger:   defaultLogger(logger),
		cache:    newBusyCache(30*time.Second, 64, now),
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// Location returns the display zone used for open hours.
func (s *AvailabilityService) Location() *time.Location {
	return s.loc
}

// Invalidate drops cached external busy lookups.
func (s *AvailabilityService) Invalidate() {
	if s != nil {
		s.cache.Invalidate()
	}
}

// FreeSlots returns the free slots of the property in [from, to). When the
// external calendar cannot be read the result is marked degraded and only
// reflects internal sources.
func (s *AvailabilityService) FreeSlots(ctx context.Context, propertyID int64, from, to time.Time) (Availability, error) {
	if s == nil {
		return Availability{}, fmt.Errorf("AvailabilityService is nil")
	}
	return s.compute(ctx, "FreeSlots", propertyID, from, to, true)
}

// IsBookable reports whether the slot starting at t is free. t must be
// aligned and not before now.
func (s *AvailabilityService) IsBookable(ctx context.Context, propertyID int64, t time.Time) (bool, Availability, error) {
	if s == nil {
		return false, Availability{}, fmt.Errorf("AvailabilityService is nil")
	}
	if !slots.IsAligned(t) || t.Before(s.now().Truncate(time.Second)) {
		return false, Availability{PropertyID: propertyID, From: t, To: t.Add(slots.Duration)}, nil
	}
	availability, err := s.compute(ctx, "IsBookable", propertyID, t, t.Add(slots.Duration), false)
	if err != nil {
		return false, availability, err
	}
	return availability.Contains(t.UTC()), availability, nil
}

// NextFree returns up to limit free slots in [after, after+72h), skipping
// slots that start before now.
func (s *AvailabilityService) NextFree(ctx context.Context, propertyID int64, after time.Time, limit int) ([]time.Time, Availability, error) {
	if s == nil {
		return nil, Availability{}, fmt.Errorf("AvailabilityService is nil")
	}
	from := after
	if now := s.now().Truncate(time.Second); from.Before(now) {
		from = now
	}
	availability, err := s.compute(ctx, "NextFree", propertyID, from, after.Add(SuggestionHorizon), false)
	if err != nil {
		return nil, availability, err
	}
	free := availability.Slots
	if limit > 0 && len(free) > limit {
		free = free[:limit]
	}
	return free, availability, nil
}

func (s *AvailabilityService) compute(ctx context.Context, operation string, propertyID int64, from, to time.Time, cached bool) (availability Availability, err error) {
	from, to = from.UTC(), to.UTC()
	availability = Availability{PropertyID: propertyID, From: from, To: to}

	logger := s.loggerWith(ctx, operation,
		"property_id", propertyID,
		"from", from,
		"to", to,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if availability.Degraded {
			logger.WarnContext(ctx, "availability degraded", "cause", availability.Cause, "error_kind", ErrorKind(availability.Cause))
			return
		}
		logger.DebugContext(ctx, "availability computed", "free", len(availability.Slots))
	}()

	if !to.After(from) || s.store == nil {
		return availability, nil
	}

	hours, err := loadOpenHours(ctx, s.store)
	if err != nil {
		return availability, err
	}

	var candidates []time.Time
	for _, start := range slots.Enumerate(from, to) {
		if slots.InOpenHours(start, hours, s.loc) {
			candidates = append(candidates, start)
		}
	}
	if len(candidates) == 0 {
		return availability, nil
	}

	blocks, err := s.store.ListBlocks(ctx, propertyID, from, to)
	if err != nil {
		return availability, storeError(err)
	}
	for _, block := range blocks {
		candidates = removeOverlapping(candidates, block.Start, block.End)
	}

	bookings, err := s.store.ListBookings(ctx, persistence.BookingFilter{
		PropertyID: propertyID,
		From:       from.Add(-slots.Duration),
		To:         to,
		ActiveOnly: true,
	})
	if err != nil {
		return availability, storeError(err)
	}
	for _, booking := range bookings {
		candidates = removeOverlapping(candidates, booking.SlotStart, booking.SlotEnd())
	}

	if len(candidates) > 0 && s.calendar != nil {
		busy, busyErr := s.externalBusy(ctx, from, to, cached)
		if busyErr != nil {
			availability.Degraded = true
			availability.Cause = busyErr
		}
		for _, event := range busy {
			if !event.HasTimes || !event.Busy() || event.Duration() > MaxBusyEventDuration {
				continue
			}
			candidates = removeOverlapping(candidates, event.Start, event.End)
		}
	}

	availability.Slots = candidates
	return availability, nil
}

func (s *AvailabilityService) externalBusy(ctx context.Context, from, to time.Time, cached bool) ([]calendar.Event, error) {
	if cached {
		if events, ok := s.cache.Get(from, to); ok {
			return events, nil
		}
	}
	events, err := s.calendar.ListBusy(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.cache.Store(from, to, events)
	return events, nil
}

// removeOverlapping drops every slot of starts that overlaps [start, end).
func removeOverlapping(starts []time.Time, start, end time.Time) []time.Time {
	kept := starts[:0]
	for _, slot := range starts {
		if !slots.Overlaps(slot, slot.Add(slots.Duration), start, end) {
			kept = append(kept, slot)
		}
	}
	return kept
}

// loadOpenHours reads the stored open hours, falling back to the defaults
// when none have been saved.
func loadOpenHours(ctx context.Context, store interface {
	GetSettings(ctx context.Context) (persistence.GlobalSettings, error)
}) (slots.OpenHours, error) {
	settings, err := store.GetSettings(ctx)
	if err != nil {
		if isNotFound(err) {
			return slots.DefaultOpenHours(), nil
		}
		return nil, storeError(err)
	}
	hours, vErr := openHoursFromSettings(settings)
	if vErr.HasErrors() {
		return nil, storeError(fmt.Errorf("stored open hours invalid: %w", vErr))
	}
	return hours, nil
}
