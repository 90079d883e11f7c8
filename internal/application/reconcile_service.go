package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/leasing-assistant/internal/calendar"
	"github.com/example/leasing-assistant/internal/notify"
	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/slots"
)

// Reconciliation defaults.
const (
	DefaultReconcilePeriod    = 5 * time.Minute
	DefaultFallbackPropertyID = 1
	DefaultSentinelPhone      = "+10000000000"
	SentinelLeadName          = "External Calendar"
)

// ReconcileConfig tunes the reconciliation loop.
type ReconcileConfig struct {
	Period             time.Duration
	FallbackPropertyID int64
	SentinelPhone      string
	// Lookback and Lookahead bound the window around now that is fetched.
	Lookback  time.Duration
	Lookahead time.Duration
}

func (c ReconcileConfig) withDefaults() ReconcileConfig {
	if c.Period <= 0 {
		c.Period = DefaultReconcilePeriod
	}
	if c.FallbackPropertyID <= 0 {
		c.FallbackPropertyID = DefaultFallbackPropertyID
	}
	if strings.TrimSpace(c.SentinelPhone) == "" {
		c.SentinelPhone = DefaultSentinelPhone
	}
	if c.Lookback <= 0 {
		c.Lookback = 24 * time.Hour
	}
	if c.Lookahead <= 0 {
		c.Lookahead = 7 * 24 * time.Hour
	}
	return c
}

// ReconcileService pulls the external calendar and brings bookings and
// blocks in line with it. Ticks never overlap.
type ReconcileService struct {
	store     BookingStore
	calendar  CalendarConnector
	oracle    *AvailabilityService
	publisher notify.Publisher
	cfg       ReconcileConfig
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	trigger chan struct{}
}

// NewReconcileService constructs the reconciliation loop.
func NewReconcileService(store BookingStore, connector CalendarConnector, oracle *AvailabilityService, publisher notify.Publisher, cfg ReconcileConfig, now func() time.Time) *ReconcileService {
	return NewReconcileServiceWithLogger(store, connector, oracle, publisher, cfg, now, nil)
}

// NewReconcileServiceWithLogger constructs the reconciliation loop with a specified logger.
func NewReconcileServiceWithLogger(store BookingStore, connector CalendarConnector, oracle *AvailabilityService, publisher notify.Publisher, cfg ReconcileConfig, now func() time.Time, logger *slog.Logger) *ReconcileService {
	if now == nil {
		now = time.Now
	}
	if publisher == nil {
		publisher = discardPublisher{}
	}
	return &ReconcileService{
		store:     store,
		calendar:  connector,
		oracle:    oracle,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		now:       now,
		logger:    defaultLogger(logger),
		trigger:   make(chan struct{}, 1),
	}
}

func (s *ReconcileService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReconcileService", operation, attrs...)
}

// Trigger requests a tick as soon as the running loop is idle. Requests made
// while one is pending are coalesced.
func (s *ReconcileService) Trigger() {
	if s == nil {
		return
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run ticks every period and on Trigger until ctx is cancelled.
func (s *ReconcileService) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("ReconcileService is nil")
	}
	logger := s.loggerWith(ctx, "Run", "period", s.cfg.Period.String())
	logger.InfoContext(ctx, "reconciliation loop started")

	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "reconciliation loop stopped")
			return nil
		case <-ticker.C:
		case <-s.trigger:
		}
		// Tick logs its own outcome; a failed tick is retried next period.
		_, _ = s.Tick(ctx)
	}
}

// Tick runs one reconciliation pass over [now-lookback, now+lookahead). A
// connector failure aborts the tick before any mutation; per-event failures
// are logged and counted.
func (s *ReconcileService) Tick(ctx context.Context) (report TickReport, err error) {
	if s == nil {
		err = fmt.Errorf("ReconcileService is nil")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	report.WindowStart = now.Add(-s.cfg.Lookback)
	report.WindowEnd = now.Add(s.cfg.Lookahead)

	logger := s.loggerWith(ctx, "Tick")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "reconciliation tick aborted", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reconciliation tick finished",
			"fetched", report.Fetched,
			"skipped", report.Skipped,
			"cancelled", report.Cancelled,
			"upserted", report.Upserted,
			"linked", report.Linked,
			"moved", report.Moved,
			"blocks_written", report.BlocksWritten,
			"purged", report.Purged,
			"errors", report.Errors,
		)
	}()

	if s.calendar == nil {
		err = calendar.ErrNotConnected
		return
	}
	if _, err = s.calendar.AccessToken(ctx); err != nil {
		return
	}

	var events []calendar.Event
	events, err = s.calendar.ListEvents(ctx, report.WindowStart, report.WindowEnd)
	if err != nil {
		return
	}
	report.Fetched = len(events)

	report.Purged, err = s.store.PurgeEndedBefore(ctx, now)
	if err != nil {
		err = storeError(err)
		return
	}

	seen := make(map[string]struct{}, len(events))
	for _, event := range events {
		if event.ID != "" {
			seen[event.ID] = struct{}{}
		}
	}
	if err = s.sweepDeleted(ctx, logger, seen, &report); err != nil {
		return
	}

	var properties []persistence.Property
	properties, err = s.store.ListProperties(ctx)
	if err != nil {
		err = storeError(err)
		return
	}

	pass := &reconcilePass{service: s, logger: logger, properties: properties, now: now, report: &report}
	for _, event := range events {
		if !importable(event) {
			report.Skipped++
			continue
		}
		if applyErr := pass.apply(ctx, event); applyErr != nil {
			report.Errors++
			logger.WarnContext(ctx, "event not reconciled", "event_id", event.ID, "error", applyErr, "error_kind", ErrorKind(applyErr))
		}
	}

	if report.Mutations() > 0 && s.oracle != nil {
		s.oracle.Invalidate()
	}
	return report, nil
}

// sweepDeleted cancels active linked bookings in the window whose event was
// not fetched and which Graph confirms is gone. A booking linked after the
// fetch, or whose event moved out of the window, is left alone.
func (s *ReconcileService) sweepDeleted(ctx context.Context, logger *slog.Logger, seen map[string]struct{}, report *TickReport) error {
	linked, err := s.store.ListBookings(ctx, persistence.BookingFilter{
		From:       report.WindowStart,
		To:         report.WindowEnd,
		ActiveOnly: true,
		LinkedOnly: true,
	})
	if err != nil {
		return storeError(err)
	}

	for _, booking := range linked {
		eventID := *booking.ExternalEventID
		if _, ok := seen[eventID]; ok {
			continue
		}
		if _, getErr := s.calendar.GetEvent(ctx, eventID); !errors.Is(getErr, calendar.ErrEventNotFound) {
			if getErr != nil {
				report.Errors++
				logger.WarnContext(ctx, "unfetched event not verified", "booking_id", booking.ID, "event_id", eventID, "error", getErr, "error_kind", ErrorKind(getErr))
			} else {
				logger.DebugContext(ctx, "unfetched event still exists", "booking_id", booking.ID, "event_id", eventID)
			}
			continue
		}
		cancelled, changed, cancelErr := s.store.CancelBooking(ctx, booking.ID, s.now())
		if cancelErr != nil {
			report.Errors++
			logger.WarnContext(ctx, "vanished event not cancelled", "booking_id", booking.ID, "error", cancelErr)
			continue
		}
		if !changed {
			continue
		}
		if _, delErr := s.store.DeleteImportedAt(ctx, booking.PropertyID, booking.SlotStart); delErr != nil {
			logger.WarnContext(ctx, "imported block not removed", "booking_id", booking.ID, "error", delErr)
		}
		report.Cancelled++
		logger.InfoContext(ctx, "booking cancelled after external deletion", "booking_id", booking.ID, "event_id", eventID)
		s.publisher.Publish(bookingEvent(notify.BookingChanged, cancelled))
	}
	return nil
}

// importable reports whether an external event should become a booking.
func importable(event calendar.Event) bool {
	return event.ID != "" &&
		event.Busy() &&
		event.HasTimes &&
		event.Duration() <= MaxBusyEventDuration
}

// reconcilePass carries the per-tick state shared by every event.
type reconcilePass struct {
	service    *ReconcileService
	logger     *slog.Logger
	properties []persistence.Property
	now        time.Time
	report     *TickReport
	sentinel   *persistence.Lead
}

func (p *reconcilePass) apply(ctx context.Context, event calendar.Event) error {
	store := p.service.store
	slot := slots.Align(event.Start)

	var propertyID int64
	linked, err := store.GetBookingByExternalID(ctx, event.ID)
	switch {
	case err == nil && linked.Status == persistence.BookingCancelled:
		p.report.Skipped++
		return nil
	case err == nil:
		propertyID = linked.PropertyID
		if err := p.syncLinked(ctx, linked, slot); err != nil {
			return err
		}
	case isNotFound(err):
		propertyID = MatchProperty(p.properties, event.Subject, p.service.cfg.FallbackPropertyID)
		if err := p.importEvent(ctx, event, propertyID, slot); err != nil {
			return err
		}
	default:
		return storeError(err)
	}

	// Intervals that ended before now are purged each tick.
	if event.End.Before(p.now) {
		return nil
	}
	_, changed, err := store.UpsertInterval(ctx, persistence.AvailabilityInterval{
		PropertyID: propertyID,
		Start:      slot,
		End:        event.End,
		IsBlocked:  true,
		Notes:      event.Subject,
		Source:     persistence.IntervalOutlook,
	})
	if err != nil {
		return storeError(err)
	}
	if changed {
		p.report.BlocksWritten++
	}
	return nil
}

// syncLinked follows an Outlook-side edit of an event already linked to an
// active booking.
func (p *reconcilePass) syncLinked(ctx context.Context, booking persistence.Booking, slot time.Time) error {
	store := p.service.store

	if booking.Status == persistence.BookingPending {
		confirmed, err := store.ConfirmBooking(ctx, booking.ID, nil, p.now)
		if err != nil {
			return storeError(err)
		}
		booking = confirmed
		p.report.Linked++
		p.service.publisher.Publish(bookingEvent(notify.BookingChanged, booking))
	}

	if booking.SlotStart.Equal(slot) {
		return nil
	}
	previous := booking.SlotStart
	moved, err := store.MoveBooking(ctx, booking.ID, slot, p.now)
	if errors.Is(err, persistence.ErrConflict) {
		p.logger.WarnContext(ctx, "moved event targets an occupied slot", "booking_id", booking.ID, "slot_start", slot)
		return nil
	}
	if err != nil {
		return storeError(err)
	}
	if _, err := store.DeleteImportedAt(ctx, booking.PropertyID, previous); err != nil {
		p.logger.WarnContext(ctx, "imported block not removed", "booking_id", booking.ID, "error", err)
	}
	p.report.Moved++
	p.service.publisher.Publish(bookingEvent(notify.BookingChanged, moved))
	return nil
}

// importEvent links the event to an unlinked booking at the slot or creates
// a confirmed booking for the sentinel lead.
func (p *reconcilePass) importEvent(ctx context.Context, event calendar.Event, propertyID int64, slot time.Time) error {
	store := p.service.store
	externalID := event.ID

	existing, err := store.GetActiveBookingAt(ctx, propertyID, slot)
	switch {
	case err == nil && existing.ExternalEventID == nil:
		linked, err := store.ConfirmBooking(ctx, existing.ID, &externalID, p.now)
		if err != nil {
			return storeError(err)
		}
		p.report.Linked++
		p.service.publisher.Publish(bookingEvent(notify.BookingChanged, linked))
		return nil
	case err == nil:
		p.logger.WarnContext(ctx, "slot already linked to another event",
			"booking_id", existing.ID,
			"event_id", event.ID,
			"linked_event_id", *existing.ExternalEventID,
		)
		return nil
	case !isNotFound(err):
		return storeError(err)
	}

	lead, err := p.sentinelLead(ctx)
	if err != nil {
		return err
	}
	created, err := store.CreateBooking(ctx, persistence.Booking{
		PropertyID:      propertyID,
		LeadID:          lead.ID,
		SlotStart:       slot,
		DurationMinutes: int(slots.Duration / time.Minute),
		Status:          persistence.BookingConfirmed,
		Source:          persistence.SourceOutlook,
		Notes:           event.Subject,
		ExternalEventID: &externalID,
	})
	if err != nil {
		return storeError(err)
	}
	p.report.Upserted++
	p.service.publisher.Publish(bookingEvent(notify.BookingChanged, created))
	return nil
}

func (p *reconcilePass) sentinelLead(ctx context.Context) (persistence.Lead, error) {
	if p.sentinel != nil {
		return *p.sentinel, nil
	}
	lead, err := p.service.store.UpsertLead(ctx, p.service.cfg.SentinelPhone, SentinelLeadName)
	if err != nil {
		return persistence.Lead{}, storeError(err)
	}
	p.sentinel = &lead
	return lead, nil
}

// MatchProperty picks the property an external event belongs to: one whose
// address contains the subject (case-insensitive), else one whose slug equals
// the slugified subject, else the fallback id.
func MatchProperty(properties []persistence.Property, subject string, fallback int64) int64 {
	needle := strings.ToLower(strings.TrimSpace(subject))
	if needle == "" {
		return fallback
	}
	for _, property := range properties {
		if strings.Contains(strings.ToLower(property.Address), needle) {
			return property.ID
		}
	}
	slug := slots.Slugify(subject)
	for _, property := range properties {
		if property.Slug == slug {
			return property.ID
		}
	}
	return fallback
}
