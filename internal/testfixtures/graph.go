package testfixtures

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/leasing-assistant/internal/calendar"
	"github.com/example/leasing-assistant/internal/persistence"
)

const graphLayout = "2006-01-02T15:04:05.0000000"

// FakeEvent is an event held by FakeMicrosoft.
type FakeEvent struct {
	ID       string
	Subject  string
	ShowAs   string
	Start    time.Time
	End      time.Time
	Location string
}

// FakeMicrosoft serves the OAuth token endpoint and the Graph calendar
// routes the connector uses, backed by an in-memory calendar.
type FakeMicrosoft struct {
	Server *httptest.Server
	// TokenDelay is slept before each token response.
	TokenDelay time.Duration

	mu             sync.Mutex
	events         map[string]FakeEvent
	seq            int
	listFailures   []int
	createFailures []int
	tokenStatus    int

	tokenHits atomic.Int64
	listCalls atomic.Int64
}

// NewFakeMicrosoft starts the fake server; it is closed with the test.
func NewFakeMicrosoft(tb testing.TB) *FakeMicrosoft {
	tb.Helper()
	f := &FakeMicrosoft{events: make(map[string]FakeEvent)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", f.handleToken)
	mux.HandleFunc("GET /graph/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"mail": "agent@example.com"})
	})
	mux.HandleFunc("GET /graph/me/calendarView", f.handleCalendarView)
	mux.HandleFunc("POST /graph/me/events", f.handleCreate)
	mux.HandleFunc("GET /graph/me/events/{id}", f.handleGet)
	mux.HandleFunc("DELETE /graph/me/events/{id}", f.handleDelete)

	f.Server = httptest.NewServer(mux)
	tb.Cleanup(f.Server.Close)
	return f
}

// Config returns connector settings pointing at the fake.
func (f *FakeMicrosoft) Config() calendar.Config {
	return calendar.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Tenant:       "common",
		AuthURL:      f.Server.URL + "/authorize",
		TokenURL:     f.Server.URL + "/token",
		GraphBaseURL: f.Server.URL + "/graph",
		RedirectURL:  "http://localhost:8080/auth/outlook/callback",
		Location:     Edmonton,
	}
}

// Connector builds a connector against the fake with an instant 429 pause.
func (f *FakeMicrosoft) Connector(tb testing.TB, store calendar.AccountStore, now func() time.Time, opts ...calendar.Option) *calendar.Connector {
	tb.Helper()
	base := []calendar.Option{
		calendar.WithHTTPClient(f.Server.Client()),
		calendar.WithClock(now),
		calendar.WithPause(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
	}
	connector, err := calendar.NewConnector(f.Config(), store, append(base, opts...)...)
	if err != nil {
		tb.Fatalf("failed to build connector: %v", err)
	}
	return connector
}

// SeedAccount stores a connected account whose access token expires at expiry.
func SeedAccount(tb testing.TB, store calendar.AccountStore, expiry time.Time) {
	tb.Helper()
	err := store.SaveCalendarAccount(context.Background(), persistence.CalendarAccount{
		UserKey:      calendar.DefaultUserKey,
		Provider:     calendar.Provider,
		AccountEmail: "agent@example.com",
		AccessToken:  "seeded-access",
		RefreshToken: "seeded-refresh",
		TokenExpiry:  expiry,
	})
	if err != nil {
		tb.Fatalf("failed to seed calendar account: %v", err)
	}
}

// AddEvent stores an event and returns its id; ShowAs defaults to busy.
func (f *FakeMicrosoft) AddEvent(event FakeEvent) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.ID == "" {
		f.seq++
		event.ID = fmt.Sprintf("evt-%03d", f.seq)
	}
	if event.ShowAs == "" {
		event.ShowAs = calendar.ShowAsBusy
	}
	f.events[event.ID] = event
	return event.ID
}

// RemoveEvent deletes an event as if the agent removed it in Outlook.
func (f *FakeMicrosoft) RemoveEvent(id string) {
	f.mu.Lock()
	delete(f.events, id)
	f.mu.Unlock()
}

// MoveEvent shifts an event to a new start, keeping its duration.
func (f *FakeMicrosoft) MoveEvent(id string, start time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[id]
	if !ok {
		return
	}
	duration := event.End.Sub(event.Start)
	event.Start = start.UTC()
	event.End = event.Start.Add(duration)
	f.events[id] = event
}

// Events returns the stored events ordered by start.
func (f *FakeMicrosoft) Events() []FakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeEvent, 0, len(f.events))
	for _, event := range f.events {
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// FailList makes the next calendarView calls answer with the given statuses.
func (f *FakeMicrosoft) FailList(statuses ...int) {
	f.mu.Lock()
	f.listFailures = append(f.listFailures, statuses...)
	f.mu.Unlock()
}

// FailCreate makes the next event creations answer with the given statuses.
func (f *FakeMicrosoft) FailCreate(statuses ...int) {
	f.mu.Lock()
	f.createFailures = append(f.createFailures, statuses...)
	f.mu.Unlock()
}

// RejectRefresh makes the token endpoint answer status with invalid_grant.
func (f *FakeMicrosoft) RejectRefresh(status int) {
	f.mu.Lock()
	f.tokenStatus = status
	f.mu.Unlock()
}

// TokenHits counts token endpoint requests.
func (f *FakeMicrosoft) TokenHits() int64 {
	return f.tokenHits.Load()
}

// ListCalls counts calendarView requests, failed ones included.
func (f *FakeMicrosoft) ListCalls() int64 {
	return f.listCalls.Load()
}

func (f *FakeMicrosoft) handleToken(w http.ResponseWriter, r *http.Request) {
	hit := f.tokenHits.Add(1)
	if f.TokenDelay > 0 {
		time.Sleep(f.TokenDelay)
	}
	f.mu.Lock()
	status := f.tokenStatus
	f.mu.Unlock()
	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "invalid_grant", "error_description": "refresh token revoked"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  fmt.Sprintf("access-%d", hit),
		"refresh_token": fmt.Sprintf("refresh-%d", hit),
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (f *FakeMicrosoft) handleCalendarView(w http.ResponseWriter, r *http.Request) {
	f.listCalls.Add(1)
	f.mu.Lock()
	if len(f.listFailures) > 0 {
		status := f.listFailures[0]
		f.listFailures = f.listFailures[1:]
		f.mu.Unlock()
		writeJSON(w, status, map[string]any{"error": map[string]string{"code": "Throttled", "message": "try later"}})
		return
	}
	f.mu.Unlock()

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("startDateTime"))
	if err != nil {
		http.Error(w, "bad startDateTime", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("endDateTime"))
	if err != nil {
		http.Error(w, "bad endDateTime", http.StatusBadRequest)
		return
	}

	values := []map[string]any{}
	for _, event := range f.Events() {
		if event.Start.Before(to) && from.Before(event.End) {
			values = append(values, wireEvent(event))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": values})
}

func (f *FakeMicrosoft) handleCreate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if len(f.createFailures) > 0 {
		status := f.createFailures[0]
		f.createFailures = f.createFailures[1:]
		f.mu.Unlock()
		writeJSON(w, status, map[string]any{"error": map[string]string{"code": "ServiceUnavailable", "message": "try later"}})
		return
	}
	f.mu.Unlock()

	var body struct {
		Subject string `json:"subject"`
		ShowAs  string `json:"showAs"`
		Start   struct {
			DateTime string `json:"dateTime"`
			TimeZone string `json:"timeZone"`
		} `json:"start"`
		End struct {
			DateTime string `json:"dateTime"`
			TimeZone string `json:"timeZone"`
		} `json:"end"`
		Location *struct {
			DisplayName string `json:"displayName"`
		} `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, errStart := parseWire(body.Start.DateTime, body.Start.TimeZone)
	end, errEnd := parseWire(body.End.DateTime, body.End.TimeZone)
	if errStart != nil || errEnd != nil {
		http.Error(w, "bad dateTime", http.StatusBadRequest)
		return
	}
	event := FakeEvent{Subject: body.Subject, ShowAs: body.ShowAs, Start: start, End: end}
	if body.Location != nil {
		event.Location = body.Location.DisplayName
	}
	event.ID = f.AddEvent(event)
	writeJSON(w, http.StatusCreated, wireEvent(event))
}

func (f *FakeMicrosoft) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	event, ok := f.events[r.PathValue("id")]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "ErrorItemNotFound", "message": "not found"}})
		return
	}
	writeJSON(w, http.StatusOK, wireEvent(event))
}

func (f *FakeMicrosoft) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f.mu.Lock()
	_, ok := f.events[id]
	delete(f.events, id)
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "ErrorItemNotFound", "message": "not found"}})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func wireEvent(event FakeEvent) map[string]any {
	return map[string]any{
		"id":       event.ID,
		"subject":  event.Subject,
		"showAs":   event.ShowAs,
		"start":    map[string]string{"dateTime": event.Start.UTC().Format(graphLayout), "timeZone": "UTC"},
		"end":      map[string]string{"dateTime": event.End.UTC().Format(graphLayout), "timeZone": "UTC"},
		"location": map[string]string{"displayName": event.Location},
	}
}

func parseWire(value, zone string) (time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
