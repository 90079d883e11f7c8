package application_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/leasing-assistant/internal/application"
	"github.com/example/leasing-assistant/internal/notify"
	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/slots"
	"github.com/example/leasing-assistant/internal/testfixtures"
)

func TestBookFirstShowing(t *testing.T) {
	s := newScenario(t)

	booking, err := s.book(t, "+15551234567", local(10, 7))
	require.NoError(t, err)

	assert.True(t, booking.SlotStart.Equal(local(10, 0)), "slot %v", booking.SlotStart)
	assert.Equal(t, persistence.BookingConfirmed, booking.Status)
	assert.Equal(t, persistence.SourceSMS, booking.Source)
	assert.Equal(t, 30, booking.DurationMinutes)
	require.NotNil(t, booking.ExternalEventID)

	events := s.graph.Events()
	require.Len(t, events, 1)
	assert.Equal(t, *booking.ExternalEventID, events[0].ID)
	assert.Equal(t, "Showing – 215 16 St SE", events[0].Subject)
	assert.True(t, events[0].Start.Equal(local(10, 0)))
	assert.True(t, events[0].End.Equal(local(10, 30)))

	assert.Len(t, s.bookings(t), 1)
	assert.Equal(t, []string{notify.BookingCreated, notify.BookingChanged}, types(s.drain()))
}

func TestBookConflictSuggestsNextFreeSlots(t *testing.T) {
	s := newScenario(t)
	_, err := s.book(t, "+15551234567", local(10, 7))
	require.NoError(t, err)

	_, err = s.book(t, "+15557654321", local(10, 7))

	var conflict *application.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "conflict", application.ErrorKind(err))
	assert.Equal(t, []time.Time{local(10, 30), local(11, 0), local(11, 30)}, conflict.Suggestions)
	assert.Len(t, s.bookings(t), 1)
}

func TestBookSameLeadTwiceReturnsSameBooking(t *testing.T) {
	s := newScenario(t)

	first, err := s.book(t, "+15551234567", local(10, 7))
	require.NoError(t, err)
	second, err := s.book(t, "+1 (555) 123-4567", local(10, 20))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, s.graph.Events(), 1)
}

func TestBookMirrorFailureLeavesPendingUntilRetried(t *testing.T) {
	s := newScenario(t)
	s.graph.FailCreate(http.StatusServiceUnavailable)

	booking, err := s.book(t, "+15551234567", local(11, 0))
	var mirrorErr *application.MirrorError
	require.ErrorAs(t, err, &mirrorErr)
	assert.Equal(t, booking.ID, mirrorErr.BookingID)
	assert.Equal(t, "upstream_error", application.ErrorKind(err))
	assert.Equal(t, persistence.BookingPending, booking.Status)
	assert.Nil(t, booking.ExternalEventID)
	assert.Empty(t, s.graph.Events())

	again, err := s.book(t, "+15551234567", local(11, 0))
	require.NoError(t, err)
	assert.Equal(t, booking.ID, again.ID)
	assert.Equal(t, persistence.BookingConfirmed, again.Status)
	assert.Len(t, s.graph.Events(), 1)
}

func TestRetryMirror(t *testing.T) {
	s := newScenario(t)
	s.graph.FailCreate(http.StatusServiceUnavailable)

	booking, err := s.book(t, "+15551234567", local(11, 0))
	require.Error(t, err)

	mirrored, err := s.core.Bookings.RetryMirror(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.BookingConfirmed, mirrored.Status)
	require.NotNil(t, mirrored.ExternalEventID)

	unchanged, err := s.core.Bookings.RetryMirror(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, *mirrored.ExternalEventID, *unchanged.ExternalEventID)
	assert.Len(t, s.graph.Events(), 1)

	_, err = s.core.Bookings.RetryMirror(context.Background(), 999)
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestBookDegradedCalendarRejects(t *testing.T) {
	s := newScenario(t)
	s.graph.FailList(http.StatusTooManyRequests, http.StatusTooManyRequests)

	_, err := s.book(t, "+15551234567", local(10, 7))

	require.ErrorIs(t, err, application.ErrDegraded)
	assert.Equal(t, "degraded", application.ErrorKind(err))
	assert.EqualValues(t, 2, s.graph.ListCalls())
	assert.Empty(t, s.bookings(t))
	assert.Empty(t, s.drain())
}

func TestBookPastTime(t *testing.T) {
	s := newScenario(t)
	s.clock.Set(local(15, 0))

	_, err := s.book(t, "+15551234567", local(14, 30))

	require.ErrorIs(t, err, application.ErrPastTime)
	assert.Equal(t, "past_time", application.ErrorKind(err))
	assert.Empty(t, s.bookings(t))
	assert.EqualValues(t, 0, s.graph.ListCalls())
}

func TestBookAtExactlyNowIsAccepted(t *testing.T) {
	s := newScenario(t)
	s.clock.Set(local(10, 0))

	booking, err := s.book(t, "+15551234567", local(10, 0))
	require.NoError(t, err)
	assert.True(t, booking.SlotStart.Equal(local(10, 0)))
}

func TestBookClosedDayConflicts(t *testing.T) {
	s := newScenario(t)
	sundayMidnight := testfixtures.Local(2026, time.March, 8, 0, 0)

	_, err := s.book(t, "+15551234567", sundayMidnight)

	var conflict *application.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.NotEmpty(t, conflict.Suggestions)
	assert.True(t, conflict.Suggestions[0].Equal(testfixtures.Local(2026, time.March, 9, 8, 0)))
}

func TestBookUnknownPropertyAndValidation(t *testing.T) {
	s := newScenario(t, withoutCalendar())
	ctx := context.Background()

	_, err := s.core.Bookings.Book(ctx, application.BookRequest{
		Phone: "+15551234567", PropertySlug: "nowhere", Requested: local(10, 0), Source: persistence.SourceSMS,
	})
	assert.ErrorIs(t, err, application.ErrUnknownProperty)

	_, err = s.core.Bookings.Book(ctx, application.BookRequest{
		LeadID: 404, PropertySlug: s.property.Slug, Requested: local(10, 0), Source: persistence.SourceDashboard,
	})
	assert.ErrorIs(t, err, application.ErrUnknownLead)

	_, err = s.core.Bookings.Book(ctx, application.BookRequest{Phone: "555", Source: "fax"})
	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "phone")
	assert.Contains(t, vErr.FieldErrors, "property")
	assert.Contains(t, vErr.FieldErrors, "requested")
	assert.Contains(t, vErr.FieldErrors, "source")
}

func TestBookWithoutCalendarConfirmsImmediately(t *testing.T) {
	s := newScenario(t, withoutCalendar())

	booking, err := s.book(t, "+15551234567", local(12, 0))
	require.NoError(t, err)
	assert.Equal(t, persistence.BookingConfirmed, booking.Status)
	assert.Nil(t, booking.ExternalEventID)
}

func TestConcurrentBooksOfOneSlotHaveOneWinner(t *testing.T) {
	s := newScenario(t, withoutCalendar())

	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.book(t, fmt.Sprintf("+1555000%04d", i), local(13, 0))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, application.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, callers-1, conflicts)
	assert.Len(t, s.bookings(t), 1)
}

func TestConcurrentBooksShareOneTokenRefresh(t *testing.T) {
	s := newScenario(t, withTokenExpiringIn(30*time.Second), withTokenDelay(50*time.Millisecond))

	var targets []time.Time
	for day := 3; len(targets) < 50; day++ {
		targets = append(targets, slots.Enumerate(
			testfixtures.Local(2026, time.March, day, 8, 0),
			testfixtures.Local(2026, time.March, day, 17, 0),
		)...)
	}
	targets = targets[:50]

	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target time.Time) {
			defer wg.Done()
			_, errs[i] = s.book(t, fmt.Sprintf("+1555100%04d", i), target)
		}(i, target)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "booking %d", i)
	}
	assert.EqualValues(t, 1, s.graph.TokenHits())
	assert.Len(t, s.graph.Events(), 50)
	for _, booking := range s.bookings(t) {
		assert.Equal(t, persistence.BookingConfirmed, booking.Status)
		assert.True(t, slots.IsAligned(booking.SlotStart))
	}
}

func TestCancelRemovesExternalEvent(t *testing.T) {
	s := newScenario(t)
	booking, err := s.book(t, "+15551234567", local(10, 0))
	require.NoError(t, err)
	s.drain()

	cancelled, err := s.core.Bookings.Cancel(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.BookingCancelled, cancelled.Status)
	assert.Empty(t, s.graph.Events())
	assert.Equal(t, []string{notify.BookingChanged}, types(s.drain()))

	again, err := s.core.Bookings.Cancel(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.BookingCancelled, again.Status)
	assert.Empty(t, s.drain())

	rebooked, err := s.book(t, "+15557654321", local(10, 0))
	require.NoError(t, err)
	assert.NotEqual(t, booking.ID, rebooked.ID)

	_, err = s.core.Bookings.Cancel(context.Background(), 999)
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestListBookingsByProperty(t *testing.T) {
	s := newScenario(t, withoutCalendar())
	other := testfixtures.SeedProperty(t, s.store)
	_, err := s.book(t, "+15551234567", local(10, 0))
	require.NoError(t, err)
	_, err = s.core.Bookings.Book(context.Background(), application.BookRequest{
		Phone: "+15551234567", PropertySlug: other.Slug, Requested: local(11, 0), Source: persistence.SourceDashboard,
	})
	require.NoError(t, err)

	listed, err := s.core.Bookings.ListBookings(context.Background(), application.ListBookingsParams{PropertySlug: other.Slug})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, other.ID, listed[0].PropertyID)

	_, err = s.core.Bookings.ListBookings(context.Background(), application.ListBookingsParams{PropertySlug: "nowhere"})
	assert.ErrorIs(t, err, application.ErrUnknownProperty)
}
