package application_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/leasing-assistant/internal/calendar"
	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/testfixtures"
)

func TestFreeSlotsSubtractsEveryBusySource(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()

	testfixtures.SeedInterval(t, s.store, persistence.AvailabilityInterval{
		PropertyID: s.property.ID,
		Start:      local(11, 15),
		End:        local(11, 45),
		Notes:      "Plumber",
	})
	_, err := s.book(t, "+15551234567", local(12, 0))
	require.NoError(t, err)
	s.graph.AddEvent(testfixtures.FakeEvent{Subject: "Dentist", Start: local(13, 0), End: local(13, 30)})
	s.graph.AddEvent(testfixtures.FakeEvent{Subject: "Hold", ShowAs: "free", Start: local(14, 0), End: local(14, 30)})
	s.graph.AddEvent(testfixtures.FakeEvent{Subject: "Offsite", Start: local(0, 0), End: local(23, 0)})

	availability, err := s.core.Availability.FreeSlots(ctx, s.property.ID, local(10, 0), local(15, 0))
	require.NoError(t, err)
	assert.False(t, availability.Degraded)
	assert.Equal(t, []time.Time{
		local(10, 0),
		local(10, 30),
		local(12, 30),
		local(13, 30),
		local(14, 0),
		local(14, 30),
	}, availability.Slots)
}

func TestFreeSlotsRespectsOpenHours(t *testing.T) {
	s := newScenario(t, withoutCalendar())

	availability, err := s.core.Availability.FreeSlots(context.Background(), s.property.ID, local(16, 0), local(18, 0))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{local(16, 0), local(16, 30)}, availability.Slots)

	sunday, err := s.core.Availability.FreeSlots(context.Background(), s.property.ID,
		testfixtures.Local(2026, time.March, 8, 0, 0), testfixtures.Local(2026, time.March, 9, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, sunday.Slots)
}

func TestFreeSlotsDegradedKeepsInternalAnswer(t *testing.T) {
	s := newScenario(t)
	s.graph.FailList(http.StatusTooManyRequests, http.StatusTooManyRequests)

	availability, err := s.core.Availability.FreeSlots(context.Background(), s.property.ID, local(10, 0), local(11, 0))
	require.NoError(t, err)
	assert.True(t, availability.Degraded)
	assert.ErrorIs(t, availability.Cause, calendar.ErrRateLimited)
	assert.Equal(t, []time.Time{local(10, 0), local(10, 30)}, availability.Slots)
}

func TestFreeSlotsCachesExternalLookups(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.core.Availability.FreeSlots(ctx, s.property.ID, local(10, 0), local(11, 0))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, s.graph.ListCalls())

	s.core.Availability.Invalidate()
	_, err := s.core.Availability.FreeSlots(ctx, s.property.ID, local(10, 0), local(11, 0))
	require.NoError(t, err)
	assert.EqualValues(t, 2, s.graph.ListCalls())
}

func TestIsBookableContract(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()

	ok, _, err := s.core.Availability.IsBookable(ctx, s.property.ID, local(10, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = s.core.Availability.IsBookable(ctx, s.property.ID, local(10, 7))
	require.NoError(t, err)
	assert.False(t, ok, "unaligned instants are never bookable")

	ok, _, err = s.core.Availability.IsBookable(ctx, s.property.ID, local(9, 0))
	require.NoError(t, err)
	assert.False(t, ok, "past slots are never bookable")
}

func TestNextFreeSkipsPastSlots(t *testing.T) {
	s := newScenario(t, withoutCalendar())

	free, _, err := s.core.Availability.NextFree(context.Background(), s.property.ID, local(8, 0), 2)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{local(9, 30), local(10, 0)}, free)
}
