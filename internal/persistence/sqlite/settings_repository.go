package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/leasing-assistant/internal/persistence"
)

// weekdayKeys maps weekdays to the keys stored in the open_hours JSON document.
var weekdayKeys = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// GetSettings loads the settings singleton or returns persistence.ErrNotFound.
func (s *Storage) GetSettings(ctx context.Context) (persistence.GlobalSettings, error) {
	var openHours, updatedAt string
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT open_hours, updated_at FROM global_settings WHERE id = 1`).Scan(&openHours, &updatedAt)
	if err != nil {
		return persistence.GlobalSettings{}, mapError(err)
	}

	var raw map[string]persistence.DayHours
	if err := json.Unmarshal([]byte(openHours), &raw); err != nil {
		return persistence.GlobalSettings{}, fmt.Errorf("sqlite: decode open_hours: %w", err)
	}

	settings := persistence.GlobalSettings{OpenHours: make(map[time.Weekday]persistence.DayHours, len(raw))}
	for day, key := range weekdayKeys {
		if hours, ok := raw[key]; ok {
			settings.OpenHours[day] = hours
		}
	}
	if settings.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.GlobalSettings{}, err
	}
	return settings, nil
}

// SaveSettings replaces the settings singleton.
func (s *Storage) SaveSettings(ctx context.Context, settings persistence.GlobalSettings) error {
	raw := make(map[string]persistence.DayHours, len(settings.OpenHours))
	for day, hours := range settings.OpenHours {
		key, ok := weekdayKeys[day]
		if !ok {
			return fmt.Errorf("%w: weekday %d", persistence.ErrConstraintViolation, day)
		}
		raw[key] = hours
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("sqlite: encode open_hours: %w", err)
	}

	updatedAt := settings.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.timestamp()
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		const upsert = `
			INSERT INTO global_settings (id, open_hours, updated_at)
			VALUES (1, ?, ?)
			ON CONFLICT (id) DO UPDATE SET open_hours = excluded.open_hours, updated_at = excluded.updated_at
		`
		if _, err := tx.ExecContext(ctx, upsert, string(encoded), formatTime(updatedAt)); err != nil {
			return mapError(err)
		}
		return nil
	})
}
