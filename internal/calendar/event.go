package calendar

import (
	"strings"
	"time"
)

// ShowAsBusy is the Graph showAs value that blocks a slot.
const ShowAsBusy = "busy"

// Event is a calendar event normalised from a Graph payload.
type Event struct {
	ID       string
	Subject  string
	Location string
	ShowAs   string
	Start    time.Time
	End      time.Time
	// HasTimes is false when start or end was missing or unparseable.
	HasTimes bool
}

// Busy reports whether the event blocks time.
func (e Event) Busy() bool {
	return strings.EqualFold(e.ShowAs, ShowAsBusy)
}

// Duration returns End - Start, or zero when times are unknown.
func (e Event) Duration() time.Duration {
	if !e.HasTimes {
		return 0
	}
	return e.End.Sub(e.Start)
}

// EventInput describes an event to create.
type EventInput struct {
	Subject       string
	Start         time.Time
	End           time.Time
	Location      string
	AttendeeEmail string
}

// graphDateTime is Graph's dateTimeTimeZone resource.
type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphEvent struct {
	ID       string         `json:"id"`
	Subject  string         `json:"subject"`
	ShowAs   string         `json:"showAs"`
	Start    *graphDateTime `json:"start"`
	End      *graphDateTime `json:"end"`
	Location *graphLocation `json:"location"`
}

type graphEventPage struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

type graphAttendee struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
	Type string `json:"type"`
}

type graphCreateEvent struct {
	Subject   string          `json:"subject"`
	Start     graphDateTime   `json:"start"`
	End       graphDateTime   `json:"end"`
	Location  *graphLocation  `json:"location,omitempty"`
	Attendees []graphAttendee `json:"attendees,omitempty"`
	ShowAs    string          `json:"showAs"`
}

type graphProfile struct {
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// graphLayouts are the dateTime forms Graph emits; fractional seconds run to seven digits.
var graphLayouts = []string{
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseGraphTime resolves a dateTimeTimeZone in its own zone, falling back to
// fallback for zone names Go cannot load (Windows names, empty).
func parseGraphTime(value *graphDateTime, fallback *time.Location) (time.Time, bool) {
	if value == nil || strings.TrimSpace(value.DateTime) == "" {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(value.DateTime)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), true
	}

	loc := fallback
	if zone := strings.TrimSpace(value.TimeZone); zone != "" {
		if loaded, err := time.LoadLocation(zone); err == nil {
			loc = loaded
		}
	}
	for _, layout := range graphLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (g graphEvent) normalise(fallback *time.Location) Event {
	event := Event{
		ID:      g.ID,
		Subject: strings.TrimSpace(g.Subject),
		ShowAs:  g.ShowAs,
	}
	if g.Location != nil {
		event.Location = g.Location.DisplayName
	}
	start, okStart := parseGraphTime(g.Start, fallback)
	end, okEnd := parseGraphTime(g.End, fallback)
	if okStart && okEnd && end.After(start) {
		event.Start, event.End, event.HasTimes = start, end, true
	}
	return event
}

func formatGraphTime(t time.Time, loc *time.Location) graphDateTime {
	return graphDateTime{
		DateTime: t.In(loc).Format("2006-01-02T15:04:05"),
		TimeZone: loc.String(),
	}
}
