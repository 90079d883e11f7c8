package persistence

import "time"

// BookingStatus is the lifecycle state of a showing.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Active reports whether the status occupies its slot.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// BookingSource records which surface created a booking.
type BookingSource string

const (
	SourceDashboard BookingSource = "dashboard"
	SourceSMS       BookingSource = "sms"
	SourceOutlook   BookingSource = "outlook"
)

// Valid reports whether the source is one of the known wire values.
func (s BookingSource) Valid() bool {
	switch s {
	case SourceDashboard, SourceSMS, SourceOutlook:
		return true
	}
	return false
}

// Property is a rental unit that leads can view.
type Property struct {
	ID        int64
	Slug      string
	Address   string
	CreatedAt time.Time
}

// Lead is a prospective tenant identified by an E.164 phone number.
type Lead struct {
	ID        int64
	Phone     string
	Name      string
	CreatedAt time.Time
}

// Booking is a 30-minute showing of a property for a lead.
type Booking struct {
	ID              int64
	PropertyID      int64
	LeadID          int64
	SlotStart       time.Time
	DurationMinutes int
	Status          BookingStatus
	Source          BookingSource
	Notes           string
	ExternalEventID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SlotEnd returns the end of the booked interval.
func (b Booking) SlotEnd() time.Time {
	return b.SlotStart.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// IntervalSource records whether an interval was entered by hand or imported
// from the external calendar.
type IntervalSource string

const (
	IntervalManual  IntervalSource = "manual"
	IntervalOutlook IntervalSource = "outlook"
)

// AvailabilityInterval blocks (or annotates) a half-open span for a property.
type AvailabilityInterval struct {
	ID         int64
	PropertyID int64
	Start      time.Time
	End        time.Time
	IsBlocked  bool
	Notes      string
	Source     IntervalSource
}

// DayHours is the open window of one weekday as "HH:MM" wall-clock strings.
type DayHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GlobalSettings is the singleton configuration row.
type GlobalSettings struct {
	// OpenHours is keyed by time.Weekday.
	OpenHours map[time.Weekday]DayHours
	UpdatedAt time.Time
}

// CalendarAccount holds OAuth credentials for one external calendar provider.
type CalendarAccount struct {
	UserKey      string
	Provider     string
	AccountEmail string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	UpdatedAt    time.Time
}
