package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/slots"
)

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
	time.Sunday:    "sunday",
}

// SettingsService manages the weekly open hours and manual availability blocks.
type SettingsService struct {
	store  SettingsStore
	now    func() time.Time
	logger *slog.Logger
	// onChange is called after blocks change so cached availability is dropped.
	onChange func()
}

// NewSettingsService constructs a settings service with the provided dependencies.
func NewSettingsService(store SettingsStore, now func() time.Time) *SettingsService {
	return NewSettingsServiceWithLogger(store, now, nil)
}

// NewSettingsServiceWithLogger constructs a settings service with a specified logger.
func NewSettingsServiceWithLogger(store SettingsStore, now func() time.Time, logger *slog.Logger) *SettingsService {
	if now == nil {
		now = time.Now
	}
	return &SettingsService{store: store, now: now, logger: defaultLogger(logger), onChange: func() {}}
}

// OnChange registers a callback run after open hours or blocks change.
func (s *SettingsService) OnChange(fn func()) {
	if s != nil && fn != nil {
		s.onChange = fn
	}
}

func (s *SettingsService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SettingsService", operation, attrs...)
}

// OpenHours returns the stored weekly open hours, saving the defaults first
// when the settings row is absent.
func (s *SettingsService) OpenHours(ctx context.Context) (hours slots.OpenHours, err error) {
	if s == nil {
		err = fmt.Errorf("SettingsService is nil")
		return
	}

	var settings persistence.GlobalSettings
	settings, err = s.store.GetSettings(ctx)
	if isNotFound(err) {
		hours = slots.DefaultOpenHours()
		if err = s.store.SaveSettings(ctx, settingsFromOpenHours(hours, s.now())); err != nil {
			err = storeError(err)
			s.loggerWith(ctx, "OpenHours").ErrorContext(ctx, "failed to initialise open hours", "error", err, "error_kind", ErrorKind(err))
			return nil, err
		}
		s.loggerWith(ctx, "OpenHours").InfoContext(ctx, "open hours initialised with defaults")
		return hours, nil
	}
	if err != nil {
		return nil, storeError(err)
	}

	hours, vErr := openHoursFromSettings(settings)
	if vErr.HasErrors() {
		return nil, storeError(fmt.Errorf("stored open hours invalid: %w", vErr))
	}
	return hours, nil
}

// UpdateOpenHours validates and replaces the weekly open hours. Weekdays
// missing from the input are closed.
func (s *SettingsService) UpdateOpenHours(ctx context.Context, input map[time.Weekday]persistence.DayHours) (hours slots.OpenHours, err error) {
	if s == nil {
		err = fmt.Errorf("SettingsService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateOpenHours")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update open hours", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "open hours updated")
	}()

	hours, vErr := openHoursFromSettings(persistence.GlobalSettings{OpenHours: input})
	if vErr.HasErrors() {
		err = vErr
		return nil, err
	}

	if err = s.store.SaveSettings(ctx, settingsFromOpenHours(hours, s.now())); err != nil {
		err = storeError(err)
		return nil, err
	}
	s.onChange()
	return hours, nil
}

// AddBlock stores a manual block for a property.
func (s *SettingsService) AddBlock(ctx context.Context, input BlockInput) (block persistence.AvailabilityInterval, err error) {
	if s == nil {
		err = fmt.Errorf("SettingsService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AddBlock", "property_slug", input.PropertySlug)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add block", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("block_id", block.ID).InfoContext(ctx, "block added")
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(input.PropertySlug) == "" {
		vErr.add("property", "property is required")
	}
	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End.IsZero() {
		vErr.add("end", "end is required")
	} else if !input.End.After(input.Start) {
		vErr.add("end", "end must be after start")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var property persistence.Property
	property, err = s.property(ctx, input.PropertySlug)
	if err != nil {
		return
	}

	block, _, err = s.store.UpsertInterval(ctx, persistence.AvailabilityInterval{
		PropertyID: property.ID,
		Start:      input.Start.UTC(),
		End:        input.End.UTC(),
		IsBlocked:  true,
		Notes:      strings.TrimSpace(input.Notes),
		Source:     persistence.IntervalManual,
	})
	if err != nil {
		err = storeError(err)
		return
	}
	s.onChange()
	return block, nil
}

// ListBlocks returns the blocks of a property overlapping [from, to).
func (s *SettingsService) ListBlocks(ctx context.Context, propertySlug string, from, to time.Time) ([]persistence.AvailabilityInterval, error) {
	if s == nil {
		return nil, fmt.Errorf("SettingsService is nil")
	}
	property, err := s.property(ctx, propertySlug)
	if err != nil {
		return nil, err
	}
	blocks, err := s.store.ListBlocks(ctx, property.ID, from.UTC(), to.UTC())
	if err != nil {
		return nil, storeError(err)
	}
	return blocks, nil
}

// DeleteBlock removes a block by id.
func (s *SettingsService) DeleteBlock(ctx context.Context, id int64) (err error) {
	if s == nil {
		return fmt.Errorf("SettingsService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteBlock", "block_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete block", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "block deleted")
	}()

	if err = s.store.DeleteInterval(ctx, id); err != nil {
		if isNotFound(err) {
			err = ErrNotFound
			return
		}
		err = storeError(err)
		return
	}
	s.onChange()
	return nil
}

func (s *SettingsService) property(ctx context.Context, slug string) (persistence.Property, error) {
	property, err := s.store.GetPropertyBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		if isNotFound(err) {
			return persistence.Property{}, ErrUnknownProperty
		}
		return persistence.Property{}, storeError(err)
	}
	return property, nil
}

// openHoursFromSettings parses every stored day window, collecting all
// invalid entries.
func openHoursFromSettings(settings persistence.GlobalSettings) (slots.OpenHours, *ValidationError) {
	vErr := &ValidationError{}
	hours := make(slots.OpenHours, 7)
	for day, dh := range settings.OpenHours {
		name, ok := weekdayNames[day]
		if !ok {
			vErr.add(fmt.Sprintf("weekday_%d", day), "unknown weekday")
			continue
		}
		window, err := slots.ParseDayWindow(dh.Start, dh.End)
		if err != nil {
			vErr.add(name, "must be HH:MM")
			continue
		}
		if window.End < window.Start {
			vErr.add(name, "end must not precede start")
			continue
		}
		hours[day] = window
	}
	return hours, vErr
}

func settingsFromOpenHours(hours slots.OpenHours, at time.Time) persistence.GlobalSettings {
	stored := make(map[time.Weekday]persistence.DayHours, 7)
	for day := range weekdayNames {
		window := hours[day]
		stored[day] = persistence.DayHours{Start: window.Start.String(), End: window.End.String()}
	}
	return persistence.GlobalSettings{OpenHours: stored, UpdatedAt: at.UTC()}
}

func isNotFound(err error) bool {
	return errors.Is(err, persistence.ErrNotFound) || errors.Is(err, ErrNotFound)
}
