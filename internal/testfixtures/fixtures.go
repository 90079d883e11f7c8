package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/leasing-assistant/internal/persistence"
)

var (
	propertyCounter uint64
	leadCounter     uint64
)

// --------------------------- Property fixtures ---------------------------

// PropertyFixture is a deterministic property to seed.
type PropertyFixture struct {
	Slug    string
	Address string
}

// PropertyOption configures a property fixture.
type PropertyOption func(*PropertyFixture)

// NewPropertyFixture returns a unique property fixture with optional overrides.
func NewPropertyFixture(opts ...PropertyOption) PropertyFixture {
	idx := atomic.AddUint64(&propertyCounter, 1)
	fixture := PropertyFixture{
		Slug:    fmt.Sprintf("%d-fixture-ave-sw", 100+idx),
		Address: fmt.Sprintf("%d Fixture Ave SW", 100+idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithProperty sets the slug and address.
func WithProperty(slug, address string) PropertyOption {
	return func(f *PropertyFixture) {
		f.Slug = slug
		f.Address = address
	}
}

// ShowingProperty is the property used by the end-to-end booking scenarios.
func ShowingProperty() PropertyOption {
	return WithProperty("215-16-st-se", "215 16 St SE")
}

// SeedProperty upserts the fixture and returns the stored property.
func SeedProperty(tb testing.TB, repo persistence.PropertyRepository, opts ...PropertyOption) persistence.Property {
	tb.Helper()
	fixture := NewPropertyFixture(opts...)
	property, err := repo.UpsertProperty(context.Background(), fixture.Slug, fixture.Address)
	if err != nil {
		tb.Fatalf("failed to seed property %q: %v", fixture.Slug, err)
	}
	return property
}

// ----------------------------- Lead fixtures -----------------------------

// NewLeadPhone returns a unique E.164 phone number.
func NewLeadPhone() string {
	idx := atomic.AddUint64(&leadCounter, 1)
	return fmt.Sprintf("+1555%07d", idx)
}

// SeedLead upserts a lead with the given phone, or a fresh one when empty.
func SeedLead(tb testing.TB, repo persistence.LeadRepository, phone string) persistence.Lead {
	tb.Helper()
	if phone == "" {
		phone = NewLeadPhone()
	}
	lead, err := repo.UpsertLead(context.Background(), phone, "")
	if err != nil {
		tb.Fatalf("failed to seed lead %q: %v", phone, err)
	}
	return lead
}

// --------------------------- Settings fixtures ---------------------------

// OpenHours returns the same window for every weekday except Sunday, which
// is closed.
func OpenHours(start, end string) map[time.Weekday]persistence.DayHours {
	hours := make(map[time.Weekday]persistence.DayHours, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		hours[day] = persistence.DayHours{Start: start, End: end}
	}
	hours[time.Sunday] = persistence.DayHours{Start: "00:00", End: "00:00"}
	return hours
}

// SeedOpenHours stores the open hours in the settings singleton.
func SeedOpenHours(tb testing.TB, repo persistence.SettingsRepository, hours map[time.Weekday]persistence.DayHours) {
	tb.Helper()
	err := repo.SaveSettings(context.Background(), persistence.GlobalSettings{
		OpenHours: hours,
		UpdatedAt: ReferenceTime().UTC(),
	})
	if err != nil {
		tb.Fatalf("failed to seed open hours: %v", err)
	}
}

// SeedInterval stores an availability interval.
func SeedInterval(tb testing.TB, repo persistence.AvailabilityRepository, interval persistence.AvailabilityInterval) persistence.AvailabilityInterval {
	tb.Helper()
	if interval.Source == "" {
		interval.Source = persistence.IntervalManual
	}
	interval.IsBlocked = true
	stored, _, err := repo.UpsertInterval(context.Background(), interval)
	if err != nil {
		tb.Fatalf("failed to seed interval: %v", err)
	}
	return stored
}
