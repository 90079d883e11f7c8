package application

import (
	"context"
	"time"

	"github.com/example/leasing-assistant/internal/calendar"
	"github.com/example/leasing-assistant/internal/persistence"
)

// CalendarConnector is the subset of the external calendar client the
// services depend on. *calendar.Connector satisfies it.
type CalendarConnector interface {
	AccessToken(ctx context.Context) (string, error)
	ListBusy(ctx context.Context, from, to time.Time) ([]calendar.Event, error)
	ListEvents(ctx context.Context, from, to time.Time) ([]calendar.Event, error)
	CreateEvent(ctx context.Context, input calendar.EventInput) (string, error)
	GetEvent(ctx context.Context, id string) (calendar.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// AvailabilityStore is what the availability oracle reads.
type AvailabilityStore interface {
	ListBlocks(ctx context.Context, propertyID int64, from, to time.Time) ([]persistence.AvailabilityInterval, error)
	ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error)
	GetSettings(ctx context.Context) (persistence.GlobalSettings, error)
}

// BookingStore is what the booking coordinator and the reconciliation loop
// read and write.
type BookingStore interface {
	persistence.PropertyRepository
	persistence.LeadRepository
	persistence.BookingRepository
	persistence.AvailabilityRepository
}

// SettingsStore is what the settings service reads and writes.
type SettingsStore interface {
	persistence.SettingsRepository
	persistence.AvailabilityRepository
	GetPropertyBySlug(ctx context.Context, slug string) (persistence.Property, error)
}

// Availability is the answer of the oracle for one property and window.
type Availability struct {
	PropertyID int64
	From       time.Time
	To         time.Time
	// Slots holds the free slot starts in ascending order.
	Slots []time.Time
	// Degraded is set when the external calendar could not be read; Cause
	// holds the connector error.
	Degraded bool
	Cause    error
}

// Contains reports whether slot is one of the free slots.
func (a Availability) Contains(slot time.Time) bool {
	for _, free := range a.Slots {
		if free.Equal(slot) {
			return true
		}
	}
	return false
}

// BookRequest is the input of BookingService.Book. Either Phone or LeadID
// identifies the lead.
type BookRequest struct {
	Phone        string
	LeadID       int64
	LeadName     string
	PropertySlug string
	Requested    time.Time
	Source       persistence.BookingSource
	Notes        string
}

// ListBookingsParams narrows BookingService.ListBookings.
type ListBookingsParams struct {
	PropertySlug string
	From         time.Time
	To           time.Time
	ActiveOnly   bool
}

// BlockInput describes a manual availability block.
type BlockInput struct {
	PropertySlug string
	Start        time.Time
	End          time.Time
	Notes        string
}

// TickReport summarises one reconciliation pass.
type TickReport struct {
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	Fetched       int       `json:"fetched"`
	Skipped       int       `json:"skipped"`
	Cancelled     int       `json:"cancelled"`
	Upserted      int       `json:"upserted"`
	Linked        int       `json:"linked"`
	Moved         int       `json:"moved"`
	BlocksWritten int       `json:"blocks_written"`
	Purged        int64     `json:"purged"`
	Errors        int       `json:"errors"`
}

// Mutations reports how many rows the tick changed.
func (r TickReport) Mutations() int {
	return r.Cancelled + r.Upserted + r.Linked + r.Moved + r.BlocksWritten + int(r.Purged)
}
