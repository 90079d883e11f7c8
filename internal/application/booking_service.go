package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/example/leasing-assistant/internal/calendar"
	"github.com/example/leasing-assistant/internal/notify"
	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/slots"
)

const (
	// bookAttempts bounds the re-checks after losing a slot to a concurrent insert.
	bookAttempts = 2
	// maxSuggestions is the number of alternative slots offered on conflict.
	maxSuggestions = 3
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// BookingService is the single write path for new showings. It commits the
// booking under the per-slot uniqueness constraint and mirrors it to the
// external calendar.
type BookingService struct {
	store     BookingStore
	oracle    *AvailabilityService
	calendar  CalendarConnector
	publisher notify.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewBookingService constructs a booking coordinator. A nil connector confirms
// bookings without an external event; a nil publisher discards events.
func NewBookingService(store BookingStore, oracle *AvailabilityService, connector CalendarConnector, publisher notify.Publisher, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(store, oracle, connector, publisher, now, nil)
}

// NewBookingServiceWithLogger constructs a booking coordinator with a specified logger.
func NewBookingServiceWithLogger(store BookingStore, oracle *AvailabilityService, connector CalendarConnector, publisher notify.Publisher, now func() time.Time, logger *slog.Logger) *BookingService {
	if now == nil {
		now = time.Now
	}
	if publisher == nil {
		publisher = discardPublisher{}
	}
	return &BookingService{
		store:     store,
		oracle:    oracle,
		calendar:  connector,
		publisher: publisher,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// Book creates a showing for the lead at the slot containing req.Requested.
//
// A *MirrorError is returned together with the committed booking when the
// external event could not be written; the booking then stays pending until
// RetryMirror or a repeated Book by the same lead completes it.
func (s *BookingService) Book(ctx context.Context, req BookRequest) (booking persistence.Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Book",
		"property_slug", req.PropertySlug,
		"source", string(req.Source),
	)
	defer func() {
		var mirrorErr *MirrorError
		switch {
		case errors.As(err, &mirrorErr):
			logger.WarnContext(ctx, "booking committed but not mirrored", "booking_id", booking.ID, "error", err, "error_kind", ErrorKind(err))
		case err != nil:
			logger.ErrorContext(ctx, "failed to book showing", "error", err, "error_kind", ErrorKind(err))
		default:
			logger.With("booking_id", booking.ID, "slot_start", booking.SlotStart, "status", string(booking.Status)).InfoContext(ctx, "showing booked")
		}
	}()

	phone, vErr := validateBookRequest(req)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var property persistence.Property
	property, err = s.store.GetPropertyBySlug(ctx, strings.TrimSpace(req.PropertySlug))
	if err != nil {
		if isNotFound(err) {
			err = ErrUnknownProperty
			return
		}
		err = storeError(err)
		return
	}

	slot := slots.Align(req.Requested)
	if slot.Before(s.now().Truncate(time.Second)) {
		err = ErrPastTime
		return
	}

	var lead persistence.Lead
	lead, err = s.resolveLead(ctx, req.LeadID, phone, req.LeadName)
	if err != nil {
		return
	}
	logger = logger.With("lead_id", lead.ID, "slot_start", slot)

	for attempt := 1; ; attempt++ {
		var existing persistence.Booking
		existing, err = s.store.GetActiveBookingAt(ctx, property.ID, slot)
		switch {
		case err == nil && existing.LeadID == lead.ID:
			return s.completeExisting(ctx, existing, property)
		case err == nil:
			err = s.conflict(ctx, property.ID, slot)
			return
		case !isNotFound(err):
			err = storeError(err)
			return
		}

		var (
			bookable     bool
			availability Availability
		)
		bookable, availability, err = s.oracle.IsBookable(ctx, property.ID, slot)
		if err != nil {
			return
		}
		if availability.Degraded {
			err = fmt.Errorf("%w: %w", ErrDegraded, availability.Cause)
			return
		}
		if !bookable {
			err = s.conflict(ctx, property.ID, slot)
			return
		}

		booking, err = s.store.CreateBooking(ctx, persistence.Booking{
			PropertyID:      property.ID,
			LeadID:          lead.ID,
			SlotStart:       slot,
			DurationMinutes: int(slots.Duration / time.Minute),
			Status:          persistence.BookingPending,
			Source:          req.Source,
			Notes:           strings.TrimSpace(req.Notes),
		})
		if err == nil {
			break
		}
		if !errors.Is(err, persistence.ErrConflict) {
			err = storeError(err)
			return
		}
		logger.DebugContext(ctx, "slot taken concurrently", "attempt", attempt)
		if attempt >= bookAttempts {
			err = s.conflict(ctx, property.ID, slot)
			return
		}
	}

	s.oracle.Invalidate()
	s.publish(notify.BookingCreated, booking)
	return s.mirror(ctx, booking, property)
}

// completeExisting returns the lead's existing booking for the slot,
// mirroring it first when still pending.
func (s *BookingService) completeExisting(ctx context.Context, existing persistence.Booking, property persistence.Property) (persistence.Booking, error) {
	if existing.Status == persistence.BookingConfirmed {
		return existing, nil
	}
	return s.mirror(ctx, existing, property)
}

// mirror writes the external event for a pending booking and confirms it.
func (s *BookingService) mirror(ctx context.Context, booking persistence.Booking, property persistence.Property) (persistence.Booking, error) {
	var externalID *string
	if s.calendar != nil {
		id, err := s.calendar.CreateEvent(ctx, calendar.EventInput{
			Subject:  showingSubject(property),
			Start:    booking.SlotStart,
			End:      booking.SlotEnd(),
			Location: property.Address,
		})
		if err != nil {
			return booking, &MirrorError{BookingID: booking.ID, Err: err}
		}
		externalID = &id
	}

	confirmed, err := s.store.ConfirmBooking(ctx, booking.ID, externalID, s.now())
	if err != nil {
		if externalID != nil {
			// The booking was cancelled or moved while the event was written.
			if delErr := s.calendar.DeleteEvent(context.WithoutCancel(ctx), *externalID); delErr != nil {
				s.loggerWith(ctx, "mirror", "booking_id", booking.ID).WarnContext(ctx, "failed to remove orphaned event", "event_id", *externalID, "error", delErr)
			}
		}
		return booking, &MirrorError{BookingID: booking.ID, Err: storeError(err)}
	}
	s.publish(notify.BookingChanged, confirmed)
	return confirmed, nil
}

// Cancel marks an active booking cancelled and removes its external event on
// a best-effort basis. Cancelling a cancelled booking is a no-op.
func (s *BookingService) Cancel(ctx context.Context, bookingID int64) (booking persistence.Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Cancel", "booking_id", bookingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking cancelled")
	}()

	var changed bool
	booking, changed, err = s.store.CancelBooking(ctx, bookingID, s.now())
	if err != nil {
		if isNotFound(err) {
			err = ErrNotFound
			return
		}
		err = storeError(err)
		return
	}
	if !changed {
		return booking, nil
	}

	if booking.ExternalEventID != nil && s.calendar != nil {
		if delErr := s.calendar.DeleteEvent(ctx, *booking.ExternalEventID); delErr != nil {
			logger.WarnContext(ctx, "external event not removed", "event_id", *booking.ExternalEventID, "error", delErr, "error_kind", ErrorKind(delErr))
		}
	}
	if _, delErr := s.store.DeleteImportedAt(ctx, booking.PropertyID, booking.SlotStart); delErr != nil {
		logger.WarnContext(ctx, "imported block not removed", "error", delErr)
	}

	s.oracle.Invalidate()
	s.publish(notify.BookingChanged, booking)
	return booking, nil
}

// RetryMirror completes the external mirror of a pending booking. Confirmed
// bookings are returned unchanged.
func (s *BookingService) RetryMirror(ctx context.Context, bookingID int64) (booking persistence.Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RetryMirror", "booking_id", bookingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to mirror booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking mirrored", "status", string(booking.Status))
	}()

	booking, err = s.store.GetBooking(ctx, bookingID)
	if err != nil {
		if isNotFound(err) {
			err = ErrNotFound
			return
		}
		err = storeError(err)
		return
	}

	switch booking.Status {
	case persistence.BookingConfirmed:
		return booking, nil
	case persistence.BookingCancelled:
		err = fmt.Errorf("%w: booking %d is cancelled", ErrConflict, bookingID)
		return
	}

	var property persistence.Property
	property, err = s.store.GetProperty(ctx, booking.PropertyID)
	if err != nil {
		err = storeError(err)
		return
	}
	return s.mirror(ctx, booking, property)
}

// ListBookings returns bookings ordered by slot start.
func (s *BookingService) ListBookings(ctx context.Context, params ListBookingsParams) ([]persistence.Booking, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}

	filter := persistence.BookingFilter{
		From:       params.From.UTC(),
		To:         params.To.UTC(),
		ActiveOnly: params.ActiveOnly,
	}
	if slug := strings.TrimSpace(params.PropertySlug); slug != "" {
		property, err := s.store.GetPropertyBySlug(ctx, slug)
		if err != nil {
			if isNotFound(err) {
				return nil, ErrUnknownProperty
			}
			return nil, storeError(err)
		}
		filter.PropertyID = property.ID
	}

	bookings, err := s.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, storeError(err)
	}
	return bookings, nil
}

func (s *BookingService) resolveLead(ctx context.Context, leadID int64, phone, name string) (persistence.Lead, error) {
	if leadID != 0 {
		lead, err := s.store.GetLead(ctx, leadID)
		if err != nil {
			if isNotFound(err) {
				return persistence.Lead{}, ErrUnknownLead
			}
			return persistence.Lead{}, storeError(err)
		}
		return lead, nil
	}
	lead, err := s.store.UpsertLead(ctx, phone, strings.TrimSpace(name))
	if err != nil {
		return persistence.Lead{}, storeError(err)
	}
	return lead, nil
}

// conflict builds a *ConflictError with the next free slots after slot.
// Suggestions are best effort: a failed lookup yields none.
func (s *BookingService) conflict(ctx context.Context, propertyID int64, slot time.Time) error {
	conflict := &ConflictError{SlotStart: slot}
	suggestions, _, err := s.oracle.NextFree(ctx, propertyID, slot, maxSuggestions)
	if err != nil {
		s.loggerWith(ctx, "conflict", "property_id", propertyID).WarnContext(ctx, "suggestions unavailable", "error", err)
		return conflict
	}
	conflict.Suggestions = suggestions
	return conflict
}

func (s *BookingService) publish(eventType string, booking persistence.Booking) {
	s.publisher.Publish(bookingEvent(eventType, booking))
}

func bookingEvent(eventType string, booking persistence.Booking) notify.Event {
	return notify.Event{
		Type:       eventType,
		BookingID:  booking.ID,
		PropertyID: booking.PropertyID,
		SlotStart:  booking.SlotStart,
		Status:     string(booking.Status),
		Source:     string(booking.Source),
	}
}

func showingSubject(property persistence.Property) string {
	return "Showing – " + property.Address
}

// NormalizePhone strips common separators and validates E.164 form.
func NormalizePhone(raw string) (string, bool) {
	phone := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	return phone, e164.MatchString(phone)
}

func validateBookRequest(req BookRequest) (string, *ValidationError) {
	vErr := &ValidationError{}
	var phone string
	if req.LeadID == 0 {
		var ok bool
		phone, ok = NormalizePhone(req.Phone)
		switch {
		case phone == "":
			vErr.add("phone", "phone is required")
		case !ok:
			vErr.add("phone", "phone must be in E.164 form")
		}
	}
	if strings.TrimSpace(req.PropertySlug) == "" {
		vErr.add("property", "property is required")
	}
	if req.Requested.IsZero() {
		vErr.add("requested", "requested time is required")
	}
	if !req.Source.Valid() {
		vErr.add("source", "source must be dashboard, sms or outlook")
	}
	return phone, vErr
}

type discardPublisher struct{}

func (discardPublisher) Publish(notify.Event) {}
