package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/leasing-assistant/internal/application"
	"github.com/example/leasing-assistant/internal/notify"
	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/persistence/sqlite"
	"github.com/example/leasing-assistant/internal/testfixtures"
)

type scenario struct {
	clock    *testfixtures.Clock
	store    *sqlite.Storage
	graph    *testfixtures.FakeMicrosoft
	topic    *notify.Topic
	events   *notify.Subscription
	core     *testfixtures.Core
	property persistence.Property
}

type scenarioOption func(*scenarioConfig)

type scenarioConfig struct {
	withoutCalendar bool
	tokenExpiry     time.Duration
	tokenDelay      time.Duration
	wrapConnector   func(application.CalendarConnector) application.CalendarConnector
}

func withoutCalendar() scenarioOption {
	return func(c *scenarioConfig) { c.withoutCalendar = true }
}

func withTokenExpiringIn(d time.Duration) scenarioOption {
	return func(c *scenarioConfig) { c.tokenExpiry = d }
}

func withTokenDelay(d time.Duration) scenarioOption {
	return func(c *scenarioConfig) { c.tokenDelay = d }
}

// withConnectorWrapper lets a test intercept calls to the Graph connector.
func withConnectorWrapper(wrap func(application.CalendarConnector) application.CalendarConnector) scenarioOption {
	return func(c *scenarioConfig) { c.wrapConnector = wrap }
}

// newScenario seeds the showing property and Mon-Sat 08:00-17:00 open hours
// at the reference time, Monday 09:15:22 in Edmonton.
func newScenario(t *testing.T, opts ...scenarioOption) *scenario {
	t.Helper()
	cfg := scenarioConfig{tokenExpiry: time.Hour}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &scenario{clock: testfixtures.NewClock(time.Time{}), topic: notify.NewTopic()}
	harness := testfixtures.NewSQLiteHarness(t, sqlite.WithClock(s.clock.NowFunc()))
	s.store = harness.Storage
	s.events = s.topic.Subscribe(256)
	t.Cleanup(s.events.Close)

	s.property = testfixtures.SeedProperty(t, s.store, testfixtures.ShowingProperty())
	testfixtures.SeedOpenHours(t, s.store, testfixtures.OpenHours("08:00", "17:00"))

	deps := testfixtures.CoreDeps{Store: harness, Publisher: s.topic}
	if !cfg.withoutCalendar {
		s.graph = testfixtures.NewFakeMicrosoft(t)
		s.graph.TokenDelay = cfg.tokenDelay
		testfixtures.SeedAccount(t, s.store, s.clock.Now().Add(cfg.tokenExpiry))
		deps.Connector = s.graph.Connector(t, s.store, s.clock.NowFunc())
		if cfg.wrapConnector != nil {
			deps.Connector = cfg.wrapConnector(deps.Connector)
		}
	}

	s.core = testfixtures.NewServiceFactory(testfixtures.WithClock(s.clock)).NewCore(deps)
	return s
}

func (s *scenario) book(t *testing.T, phone string, requested time.Time) (persistence.Booking, error) {
	t.Helper()
	return s.core.Bookings.Book(context.Background(), application.BookRequest{
		Phone:        phone,
		PropertySlug: s.property.Slug,
		Requested:    requested,
		Source:       persistence.SourceSMS,
	})
}

func (s *scenario) bookings(t *testing.T) []persistence.Booking {
	t.Helper()
	bookings, err := s.store.ListBookings(context.Background(), persistence.BookingFilter{})
	require.NoError(t, err)
	return bookings
}

// drain returns the events published so far.
func (s *scenario) drain() []notify.Event {
	var out []notify.Event
	for {
		select {
		case event := <-s.events.C():
			out = append(out, event)
		default:
			return out
		}
	}
}

func local(hour, minute int) time.Time {
	return testfixtures.OnReferenceDay(hour, minute).UTC()
}

func types(events []notify.Event) []string {
	out := make([]string, len(events))
	for i, event := range events {
		out[i] = event.Type
	}
	return out
}
