package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/example/leasing-assistant/internal/application"
	"github.com/example/leasing-assistant/internal/calendar"
	"github.com/example/leasing-assistant/internal/config"
	"github.com/example/leasing-assistant/internal/logging"
	"github.com/example/leasing-assistant/internal/notify"
	"github.com/example/leasing-assistant/internal/persistence/sqlite"
	"github.com/example/leasing-assistant/internal/secrets"
)

// app holds the wired services shared by every subcommand.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	storage   *sqlite.Storage
	topic     *notify.Topic
	connector *calendar.Connector

	availability *application.AvailabilityService
	bookings     *application.BookingService
	reconcile    *application.ReconcileService
	settings     *application.SettingsService
	properties   *application.PropertyService
}

func loadConfig(opts *rootOptions) (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(opts.envFile)
	if err != nil {
		logging.New(os.Stderr, nil).Error("failed to load configuration", "error", err)
		return config.Config{}, nil, err
	}
	return cfg, logging.New(os.Stdout, cfg.LogLevel), nil
}

// openStorage opens and migrates the database.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlite.Storage, error) {
	storage, err := sqlite.Open(cfg.SQLiteDSN, sqlite.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return storage, nil
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	storage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to prepare storage", "error", err)
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, storage: storage, topic: notify.NewTopic()}

	// A nil *calendar.Connector must not reach the services as a non-nil interface.
	var connector application.CalendarConnector
	if cfg.Outlook.Enabled() {
		box, err := secrets.NewBox(cfg.TokenKey)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("token key: %w", err)
		}
		a.connector, err = calendar.NewConnector(calendar.Config{
			ClientID:     cfg.Outlook.ClientID,
			ClientSecret: cfg.Outlook.ClientSecret,
			Tenant:       cfg.Outlook.Tenant,
			RedirectURL:  cfg.Outlook.RedirectURL,
			GraphBaseURL: cfg.Outlook.GraphBaseURL,
			Location:     cfg.DisplayZone,
		}, storage, calendar.WithBox(box), calendar.WithLogger(logger))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("calendar connector: %w", err)
		}
		connector = a.connector
	} else {
		logger.Warn("outlook not configured; bookings are confirmed without a calendar mirror")
	}

	a.availability = application.NewAvailabilityServiceWithLogger(storage, connector, cfg.DisplayZone, nil, logger)
	a.settings = application.NewSettingsServiceWithLogger(storage, nil, logger)
	a.settings.OnChange(a.availability.Invalidate)
	a.bookings = application.NewBookingServiceWithLogger(storage, a.availability, connector, a.topic, nil, logger)
	a.reconcile = application.NewReconcileServiceWithLogger(storage, connector, a.availability, a.topic, application.ReconcileConfig{
		Period:             cfg.ReconcilePeriod,
		FallbackPropertyID: cfg.FallbackPropertyID,
		SentinelPhone:      cfg.SentinelLeadPhone,
	}, nil, logger)
	a.properties = application.NewPropertyServiceWithLogger(storage, logger)
	return a, nil
}

func (a *app) close() {
	if a == nil || a.storage == nil {
		return
	}
	if err := a.storage.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}
