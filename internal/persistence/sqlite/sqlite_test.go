package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/leasing-assistant/internal/persistence"
)

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "leasing.db")
	storage, err := Open(dsn, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		_ = storage.Close()
	})

	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return storage
}

func seedPropertyAndLead(t *testing.T, storage *Storage) (persistence.Property, persistence.Lead) {
	t.Helper()
	ctx := context.Background()

	property, err := storage.UpsertProperty(ctx, "123-main-st", "123 Main St")
	if err != nil {
		t.Fatalf("UpsertProperty failed: %v", err)
	}
	lead, err := storage.UpsertLead(ctx, "+14035550100", "Jordan")
	if err != nil {
		t.Fatalf("UpsertLead failed: %v", err)
	}
	return property, lead
}

func TestMigrateIsIdempotent(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if err := storage.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	status, err := storage.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if status.PendingCount != 0 || status.CurrentVersion != "001" {
		t.Fatalf("unexpected migration status: %+v", status)
	}
}

func TestPropertyRepository(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	created, err := storage.UpsertProperty(ctx, "maple-court", "12 Maple Court")
	if err != nil {
		t.Fatalf("UpsertProperty failed: %v", err)
	}
	updated, err := storage.UpsertProperty(ctx, "maple-court", "12 Maple Court SW")
	if err != nil {
		t.Fatalf("UpsertProperty (update) failed: %v", err)
	}
	if updated.ID != created.ID || updated.Address != "12 Maple Court SW" {
		t.Fatalf("expected address update on same row, got %+v", updated)
	}

	bySlug, err := storage.GetPropertyBySlug(ctx, "maple-court")
	if err != nil || bySlug.ID != created.ID {
		t.Fatalf("GetPropertyBySlug = %+v, %v", bySlug, err)
	}

	if _, err := storage.GetProperty(ctx, 999); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown property, got %v", err)
	}

	list, err := storage.ListProperties(ctx)
	if err != nil {
		t.Fatalf("ListProperties failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 property, got %d", len(list))
	}
}

func TestLeadUpsertKeepsNameWhenBlank(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	first, err := storage.UpsertLead(ctx, "+14035550100", "Jordan")
	if err != nil {
		t.Fatalf("UpsertLead failed: %v", err)
	}
	second, err := storage.UpsertLead(ctx, "+14035550100", "")
	if err != nil {
		t.Fatalf("UpsertLead (blank name) failed: %v", err)
	}
	if second.ID != first.ID || second.Name != "Jordan" {
		t.Fatalf("expected existing lead with name kept, got %+v", second)
	}

	renamed, err := storage.UpsertLead(ctx, "+14035550100", "Jordan Lee")
	if err != nil {
		t.Fatalf("UpsertLead (rename) failed: %v", err)
	}
	if renamed.Name != "Jordan Lee" {
		t.Fatalf("expected rename, got %q", renamed.Name)
	}
}

func TestBookingActiveSlotUniqueness(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	property, lead := seedPropertyAndLead(t, storage)
	other, err := storage.UpsertLead(ctx, "+14035550199", "Sam")
	if err != nil {
		t.Fatalf("UpsertLead failed: %v", err)
	}

	slot := time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC)
	first, err := storage.CreateBooking(ctx, persistence.Booking{
		PropertyID: property.ID,
		LeadID:     lead.ID,
		SlotStart:  slot,
		Source:     persistence.SourceDashboard,
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	if first.Status != persistence.BookingPending || first.DurationMinutes != 30 {
		t.Fatalf("unexpected defaults: %+v", first)
	}
	if !first.SlotStart.Equal(slot) {
		t.Fatalf("slot start round-trip mismatch: %v", first.SlotStart)
	}

	_, err = storage.CreateBooking(ctx, persistence.Booking{
		PropertyID: property.ID,
		LeadID:     other.ID,
		SlotStart:  slot,
		Source:     persistence.SourceSMS,
	})
	if !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate active slot, got %v", err)
	}

	if _, changed, err := storage.CancelBooking(ctx, first.ID, testNow); err != nil || !changed {
		t.Fatalf("CancelBooking = changed %v, err %v", changed, err)
	}
	if _, changed, err := storage.CancelBooking(ctx, first.ID, testNow); err != nil || changed {
		t.Fatalf("second CancelBooking = changed %v, err %v", changed, err)
	}

	rebooked, err := storage.CreateBooking(ctx, persistence.Booking{
		PropertyID: property.ID,
		LeadID:     other.ID,
		SlotStart:  slot,
		Source:     persistence.SourceSMS,
	})
	if err != nil {
		t.Fatalf("expected cancelled slot to be reusable, got %v", err)
	}

	active, err := storage.GetActiveBookingAt(ctx, property.ID, slot)
	if err != nil || active.ID != rebooked.ID {
		t.Fatalf("GetActiveBookingAt = %+v, %v", active, err)
	}
}

func TestConfirmAndMoveBooking(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	property, lead := seedPropertyAndLead(t, storage)

	slot := time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC)
	booking, err := storage.CreateBooking(ctx, persistence.Booking{
		PropertyID: property.ID,
		LeadID:     lead.ID,
		SlotStart:  slot,
		Source:     persistence.SourceDashboard,
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	eventID := "AAMkAD-event-1"
	confirmed, err := storage.ConfirmBooking(ctx, booking.ID, &eventID, testNow)
	if err != nil {
		t.Fatalf("ConfirmBooking failed: %v", err)
	}
	if confirmed.Status != persistence.BookingConfirmed || confirmed.ExternalEventID == nil || *confirmed.ExternalEventID != eventID {
		t.Fatalf("unexpected confirmed booking: %+v", confirmed)
	}

	linked, err := storage.GetBookingByExternalID(ctx, eventID)
	if err != nil || linked.ID != booking.ID {
		t.Fatalf("GetBookingByExternalID = %+v, %v", linked, err)
	}

	moved, err := storage.MoveBooking(ctx, booking.ID, slot.Add(time.Hour), testNow)
	if err != nil {
		t.Fatalf("MoveBooking failed: %v", err)
	}
	if !moved.SlotStart.Equal(slot.Add(time.Hour)) {
		t.Fatalf("expected moved slot, got %v", moved.SlotStart)
	}

	second, err := storage.CreateBooking(ctx, persistence.Booking{
		PropertyID:      property.ID,
		LeadID:          lead.ID,
		SlotStart:       slot.Add(2 * time.Hour),
		Source:          persistence.SourceOutlook,
		Status:          persistence.BookingConfirmed,
		ExternalEventID: &eventID,
	})
	if !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate external id, got %+v, %v", second, err)
	}

	if _, _, err := storage.CancelBooking(ctx, booking.ID, testNow); err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}
	if _, err := storage.ConfirmBooking(ctx, booking.ID, nil, testNow); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict confirming cancelled booking, got %v", err)
	}
	if _, err := storage.ConfirmBooking(ctx, 999, nil, testNow); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListBookingsFilter(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	property, lead := seedPropertyAndLead(t, storage)

	base := time.Date(2026, 3, 3, 16, 0, 0, 0, time.UTC)
	eventID := "evt-1"
	for i := 0; i < 3; i++ {
		booking := persistence.Booking{
			PropertyID: property.ID,
			LeadID:     lead.ID,
			SlotStart:  base.Add(time.Duration(i) * time.Hour),
			Source:     persistence.SourceDashboard,
		}
		if i == 1 {
			booking.ExternalEventID = &eventID
			booking.Status = persistence.BookingConfirmed
		}
		if _, err := storage.CreateBooking(ctx, booking); err != nil {
			t.Fatalf("CreateBooking %d failed: %v", i, err)
		}
	}

	inWindow, err := storage.ListBookings(ctx, persistence.BookingFilter{
		PropertyID: property.ID,
		From:       base,
		To:         base.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if len(inWindow) != 2 {
		t.Fatalf("expected 2 bookings in half-open window, got %d", len(inWindow))
	}

	linked, err := storage.ListBookings(ctx, persistence.BookingFilter{LinkedOnly: true, ActiveOnly: true})
	if err != nil {
		t.Fatalf("ListBookings (linked) failed: %v", err)
	}
	if len(linked) != 1 || linked[0].ExternalEventID == nil {
		t.Fatalf("expected one linked booking, got %+v", linked)
	}
}

func TestAvailabilityIntervals(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	property, _ := seedPropertyAndLead(t, storage)

	start := time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)
	interval := persistence.AvailabilityInterval{
		PropertyID: property.ID,
		Start:      start,
		End:        start.Add(time.Hour),
		IsBlocked:  true,
		Notes:      "Dentist",
	}

	stored, changed, err := storage.UpsertInterval(ctx, interval)
	if err != nil || !changed {
		t.Fatalf("first UpsertInterval = changed %v, err %v", changed, err)
	}
	if _, changed, err := storage.UpsertInterval(ctx, interval); err != nil || changed {
		t.Fatalf("identical UpsertInterval = changed %v, err %v", changed, err)
	}

	interval.End = start.Add(90 * time.Minute)
	updated, changed, err := storage.UpsertInterval(ctx, interval)
	if err != nil || !changed {
		t.Fatalf("extending UpsertInterval = changed %v, err %v", changed, err)
	}
	if updated.ID != stored.ID || !updated.End.Equal(interval.End) {
		t.Fatalf("expected in-place update, got %+v", updated)
	}
	if updated.Source != persistence.IntervalManual {
		t.Fatalf("expected manual source by default, got %q", updated.Source)
	}
	if deleted, err := storage.DeleteImportedAt(ctx, property.ID, start); err != nil || deleted {
		t.Fatalf("DeleteImportedAt on manual block = %v, %v", deleted, err)
	}

	imported := persistence.AvailabilityInterval{
		PropertyID: property.ID,
		Start:      start.Add(3 * time.Hour),
		End:        start.Add(210 * time.Minute),
		IsBlocked:  true,
		Notes:      "Showing",
		Source:     persistence.IntervalOutlook,
	}
	if _, changed, err := storage.UpsertInterval(ctx, imported); err != nil || !changed {
		t.Fatalf("imported UpsertInterval = changed %v, err %v", changed, err)
	}
	if deleted, err := storage.DeleteImportedAt(ctx, property.ID, imported.Start); err != nil || !deleted {
		t.Fatalf("DeleteImportedAt = %v, %v", deleted, err)
	}

	blocks, err := storage.ListBlocks(ctx, property.ID, start.Add(80*time.Minute), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListBlocks failed: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected overlapping block, got %d", len(blocks))
	}

	blocks, err = storage.ListBlocks(ctx, property.ID, start.Add(90*time.Minute), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListBlocks failed: %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("expected end to be exclusive, got %d blocks", len(blocks))
	}

	purged, err := storage.PurgeEndedBefore(ctx, start.Add(2*time.Hour))
	if err != nil || purged != 1 {
		t.Fatalf("PurgeEndedBefore = %d, %v", purged, err)
	}
	if err := storage.DeleteInterval(ctx, stored.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after purge, got %v", err)
	}

	if _, _, err := storage.UpsertInterval(ctx, persistence.AvailabilityInterval{
		PropertyID: property.ID, Start: start, End: start,
	}); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for empty interval, got %v", err)
	}
}

func TestImportedIntervalKeepsManualBlock(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	property, _ := seedPropertyAndLead(t, storage)

	start := time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)
	manual, _, err := storage.UpsertInterval(ctx, persistence.AvailabilityInterval{
		PropertyID: property.ID,
		Start:      start,
		End:        start.Add(time.Hour),
		IsBlocked:  true,
		Notes:      "Painters",
	})
	if err != nil {
		t.Fatalf("manual UpsertInterval failed: %v", err)
	}

	kept, changed, err := storage.UpsertInterval(ctx, persistence.AvailabilityInterval{
		PropertyID: property.ID,
		Start:      start,
		End:        start.Add(30 * time.Minute),
		IsBlocked:  true,
		Notes:      "Dentist",
		Source:     persistence.IntervalOutlook,
	})
	if err != nil || changed {
		t.Fatalf("imported UpsertInterval over manual block = changed %v, err %v", changed, err)
	}
	if kept.ID != manual.ID || kept.Source != persistence.IntervalManual || !kept.End.Equal(manual.End) || kept.Notes != "Painters" {
		t.Fatalf("expected manual block untouched, got %+v", kept)
	}
	if deleted, err := storage.DeleteImportedAt(ctx, property.ID, start); err != nil || deleted {
		t.Fatalf("DeleteImportedAt removed the manual block = %v, %v", deleted, err)
	}

	later := start.Add(2 * time.Hour)
	if _, _, err := storage.UpsertInterval(ctx, persistence.AvailabilityInterval{
		PropertyID: property.ID,
		Start:      later,
		End:        later.Add(30 * time.Minute),
		IsBlocked:  true,
		Notes:      "Dentist",
		Source:     persistence.IntervalOutlook,
	}); err != nil {
		t.Fatalf("imported UpsertInterval failed: %v", err)
	}
	replaced, changed, err := storage.UpsertInterval(ctx, persistence.AvailabilityInterval{
		PropertyID: property.ID,
		Start:      later,
		End:        later.Add(time.Hour),
		IsBlocked:  true,
		Notes:      "Owner walkthrough",
	})
	if err != nil || !changed {
		t.Fatalf("manual UpsertInterval over imported block = changed %v, err %v", changed, err)
	}
	if replaced.Source != persistence.IntervalManual || !replaced.End.Equal(later.Add(time.Hour)) {
		t.Fatalf("expected manual block to take over, got %+v", replaced)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if _, err := storage.GetSettings(ctx); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}

	settings := persistence.GlobalSettings{OpenHours: map[time.Weekday]persistence.DayHours{
		time.Monday:   {Start: "09:00", End: "17:00"},
		time.Saturday: {Start: "10:00", End: "14:00"},
	}}
	if err := storage.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	loaded, err := storage.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if len(loaded.OpenHours) != 2 || loaded.OpenHours[time.Saturday].End != "14:00" {
		t.Fatalf("unexpected settings: %+v", loaded)
	}
	if !loaded.UpdatedAt.Equal(testNow) {
		t.Fatalf("expected UpdatedAt from clock, got %v", loaded.UpdatedAt)
	}
}

func TestCalendarAccountRoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if _, err := storage.GetCalendarAccount(ctx, "default", "outlook"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	account := persistence.CalendarAccount{
		UserKey:      "default",
		Provider:     "outlook",
		AccountEmail: "agent@example.com",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenExpiry:  testNow.Add(time.Hour),
	}
	if err := storage.SaveCalendarAccount(ctx, account); err != nil {
		t.Fatalf("SaveCalendarAccount failed: %v", err)
	}

	account.AccountEmail = ""
	account.AccessToken = "access-2"
	if err := storage.SaveCalendarAccount(ctx, account); err != nil {
		t.Fatalf("SaveCalendarAccount (refresh) failed: %v", err)
	}

	loaded, err := storage.GetCalendarAccount(ctx, "default", "outlook")
	if err != nil {
		t.Fatalf("GetCalendarAccount failed: %v", err)
	}
	if loaded.AccessToken != "access-2" || loaded.AccountEmail != "agent@example.com" {
		t.Fatalf("unexpected account: %+v", loaded)
	}
	if !loaded.TokenExpiry.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", loaded.TokenExpiry)
	}
}
