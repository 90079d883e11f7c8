package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/leasing-assistant/internal/application"
	"github.com/example/leasing-assistant/internal/notify"
)

// ServiceFactory assists tests with constructing wired application services
// sharing one clock and display zone.
type ServiceFactory struct {
	Clock    *Clock
	Location *time.Location
	Logger   *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:    NewClock(time.Time{}),
		Location: Edmonton,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.Location == nil {
		factory.Location = Edmonton
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithLogger overrides the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// CoreDeps captures the collaborators of the scheduling services.
type CoreDeps struct {
	Store     *SQLiteHarness
	Connector application.CalendarConnector
	Publisher notify.Publisher
	Reconcile application.ReconcileConfig
}

// Core bundles the services built by NewCore.
type Core struct {
	Availability *application.AvailabilityService
	Bookings     *application.BookingService
	Reconcile    *application.ReconcileService
	Settings     *application.SettingsService
	Properties   *application.PropertyService
}

// NewCore wires every scheduling service over the harness store.
func (f *ServiceFactory) NewCore(deps CoreDeps) *Core {
	now := f.Clock.NowFunc()
	store := deps.Store.Storage

	availability := application.NewAvailabilityServiceWithLogger(store, deps.Connector, f.Location, now, f.Logger)
	settings := application.NewSettingsServiceWithLogger(store, now, f.Logger)
	settings.OnChange(availability.Invalidate)

	return &Core{
		Availability: availability,
		Bookings:     application.NewBookingServiceWithLogger(store, availability, deps.Connector, deps.Publisher, now, f.Logger),
		Reconcile:    application.NewReconcileServiceWithLogger(store, deps.Connector, availability, deps.Publisher, deps.Reconcile, now, f.Logger),
		Settings:     settings,
		Properties:   application.NewPropertyServiceWithLogger(store, f.Logger),
	}
}
