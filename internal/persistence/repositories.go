package persistence

import (
	"context"
	"time"
)

// PropertyRepository exposes property lookups and onboarding upserts.
type PropertyRepository interface {
	UpsertProperty(ctx context.Context, slug, address string) (Property, error)
	GetProperty(ctx context.Context, id int64) (Property, error)
	GetPropertyBySlug(ctx context.Context, slug string) (Property, error)
	ListProperties(ctx context.Context) ([]Property, error)
}

// LeadRepository stores leads keyed by phone.
type LeadRepository interface {
	UpsertLead(ctx context.Context, phone, name string) (Lead, error)
	GetLead(ctx context.Context, id int64) (Lead, error)
}

// BookingFilter narrows booking queries. Zero values mean "no constraint".
type BookingFilter struct {
	PropertyID int64
	From       time.Time
	To         time.Time
	ActiveOnly bool
	LinkedOnly bool
}

// BookingRepository stores bookings under the per-slot uniqueness constraint.
type BookingRepository interface {
	// CreateBooking inserts a booking and returns ErrConflict when another
	// active booking holds the same (property, slot).
	CreateBooking(ctx context.Context, booking Booking) (Booking, error)
	GetBooking(ctx context.Context, id int64) (Booking, error)
	// GetActiveBookingAt returns the pending/confirmed booking for the slot.
	GetActiveBookingAt(ctx context.Context, propertyID int64, slotStart time.Time) (Booking, error)
	GetBookingByExternalID(ctx context.Context, externalID string) (Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	// ConfirmBooking sets status confirmed and links the external event.
	ConfirmBooking(ctx context.Context, id int64, externalID *string, at time.Time) (Booking, error)
	// CancelBooking marks a booking cancelled; cancelling twice is a no-op.
	CancelBooking(ctx context.Context, id int64, at time.Time) (Booking, bool, error)
	// MoveBooking changes the slot of an active booking; ErrConflict when taken.
	MoveBooking(ctx context.Context, id int64, slotStart time.Time, at time.Time) (Booking, error)
}

// AvailabilityRepository stores manual and imported blocks.
type AvailabilityRepository interface {
	// UpsertInterval writes the interval keyed by (property, start) and reports
	// whether any row changed.
	UpsertInterval(ctx context.Context, interval AvailabilityInterval) (AvailabilityInterval, bool, error)
	ListBlocks(ctx context.Context, propertyID int64, from, to time.Time) ([]AvailabilityInterval, error)
	DeleteInterval(ctx context.Context, id int64) error
	// DeleteImportedAt removes the calendar-imported interval at (property, start).
	DeleteImportedAt(ctx context.Context, propertyID int64, start time.Time) (bool, error)
	// PurgeEndedBefore deletes intervals whose end precedes the reference.
	PurgeEndedBefore(ctx context.Context, reference time.Time) (int64, error)
}

// SettingsRepository stores the GlobalSettings singleton.
type SettingsRepository interface {
	// GetSettings returns ErrNotFound when the singleton row is absent.
	GetSettings(ctx context.Context) (GlobalSettings, error)
	SaveSettings(ctx context.Context, settings GlobalSettings) error
}

// CalendarAccountRepository stores OAuth credentials per provider.
type CalendarAccountRepository interface {
	GetCalendarAccount(ctx context.Context, userKey, provider string) (CalendarAccount, error)
	SaveCalendarAccount(ctx context.Context, account CalendarAccount) error
}
