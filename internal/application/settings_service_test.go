package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/leasing-assistant/internal/application"
	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/slots"
	"github.com/example/leasing-assistant/internal/testfixtures"
)

func TestOpenHoursInitialisesDefaults(t *testing.T) {
	harness := testfixtures.NewSQLiteHarness(t)
	svc := application.NewSettingsService(harness.Storage, testfixtures.NewClock(time.Time{}).NowFunc())

	hours, err := svc.OpenHours(context.Background())
	require.NoError(t, err)
	assert.Equal(t, slots.DefaultOpenHours(), hours)

	stored, err := harness.Storage.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, persistence.DayHours{Start: "09:00", End: "17:00"}, stored.OpenHours[time.Monday])
	assert.Equal(t, persistence.DayHours{Start: "00:00", End: "00:00"}, stored.OpenHours[time.Sunday])
}

func TestUpdateOpenHoursValidates(t *testing.T) {
	s := newScenario(t, withoutCalendar())
	ctx := context.Background()

	_, err := s.core.Settings.UpdateOpenHours(ctx, map[time.Weekday]persistence.DayHours{
		time.Monday:  {Start: "9am", End: "17:00"},
		time.Tuesday: {Start: "17:00", End: "09:00"},
	})
	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "monday")
	assert.Contains(t, vErr.FieldErrors, "tuesday")

	hours, err := s.core.Settings.UpdateOpenHours(ctx, map[time.Weekday]persistence.DayHours{
		time.Monday: {Start: "10:00", End: "11:00"},
	})
	require.NoError(t, err)
	assert.True(t, hours[time.Tuesday].Closed())

	availability, err := s.core.Availability.FreeSlots(ctx, s.property.ID, local(9, 0), local(12, 0))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{local(10, 0), local(10, 30)}, availability.Slots)
}

func TestBlocksLifecycle(t *testing.T) {
	s := newScenario(t, withoutCalendar())
	ctx := context.Background()

	_, err := s.core.Settings.AddBlock(ctx, application.BlockInput{PropertySlug: s.property.Slug, Start: local(11, 0), End: local(10, 0)})
	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "end")

	_, err = s.core.Settings.AddBlock(ctx, application.BlockInput{PropertySlug: "nowhere", Start: local(10, 0), End: local(11, 0)})
	assert.ErrorIs(t, err, application.ErrUnknownProperty)

	block, err := s.core.Settings.AddBlock(ctx, application.BlockInput{
		PropertySlug: s.property.Slug,
		Start:        local(10, 0),
		End:          local(11, 0),
		Notes:        " Painting ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Painting", block.Notes)

	ok, _, err := s.core.Availability.IsBookable(ctx, s.property.ID, local(10, 30))
	require.NoError(t, err)
	assert.False(t, ok)

	blocks, err := s.core.Settings.ListBlocks(ctx, s.property.Slug, local(0, 0), local(23, 0))
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	require.NoError(t, s.core.Settings.DeleteBlock(ctx, block.ID))
	assert.ErrorIs(t, s.core.Settings.DeleteBlock(ctx, block.ID), application.ErrNotFound)
}
