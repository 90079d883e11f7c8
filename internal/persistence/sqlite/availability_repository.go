package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/leasing-assistant/internal/persistence"
)

const intervalColumns = `id, property_id, start_time, end_time, is_blocked, notes, source`

// UpsertInterval writes the interval keyed by (property, start). An imported
// interval never replaces a manual one. The reported flag is false when the
// stored row was left unchanged.
func (s *Storage) UpsertInterval(ctx context.Context, interval persistence.AvailabilityInterval) (persistence.AvailabilityInterval, bool, error) {
	if interval.PropertyID == 0 || !interval.End.After(interval.Start) {
		return persistence.AvailabilityInterval{}, false, persistence.ErrConstraintViolation
	}

	if interval.Source == "" {
		interval.Source = persistence.IntervalManual
	}

	var (
		stored  persistence.AvailabilityInterval
		changed bool
	)
	err := s.write(ctx, func(tx *sql.Tx) error {
		const upsert = `
			INSERT INTO availability_intervals (property_id, start_time, end_time, is_blocked, notes, source)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (property_id, start_time) DO UPDATE SET
				end_time = excluded.end_time,
				is_blocked = excluded.is_blocked,
				notes = excluded.notes,
				source = excluded.source
			WHERE NOT (availability_intervals.source = 'manual' AND excluded.source = 'outlook')
				AND (availability_intervals.end_time <> excluded.end_time
					OR availability_intervals.is_blocked <> excluded.is_blocked
					OR availability_intervals.notes <> excluded.notes
					OR availability_intervals.source <> excluded.source)
		`
		result, err := tx.ExecContext(ctx, upsert,
			interval.PropertyID,
			formatTime(interval.Start),
			formatTime(interval.End),
			interval.IsBlocked,
			interval.Notes,
			string(interval.Source),
		)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		changed = affected > 0

		stored, err = scanInterval(tx.QueryRowContext(ctx,
			`SELECT `+intervalColumns+` FROM availability_intervals WHERE property_id = ? AND start_time = ?`,
			interval.PropertyID, formatTime(interval.Start)))
		return err
	})
	return stored, changed, err
}

// ListBlocks returns blocked intervals of the property overlapping [from, to).
// A zero propertyID lists every property.
func (s *Storage) ListBlocks(ctx context.Context, propertyID int64, from, to time.Time) ([]persistence.AvailabilityInterval, error) {
	query := `SELECT ` + intervalColumns + ` FROM availability_intervals
		WHERE is_blocked = 1 AND start_time < ? AND end_time > ?`
	args := []any{formatTime(to), formatTime(from)}
	if propertyID != 0 {
		query += ` AND property_id = ?`
		args = append(args, propertyID)
	}
	query += ` ORDER BY start_time, id`

	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var intervals []persistence.AvailabilityInterval
	for rows.Next() {
		interval, err := scanInterval(rows)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, interval)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return intervals, nil
}

// DeleteInterval removes an interval by id.
func (s *Storage) DeleteInterval(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM availability_intervals WHERE id = ?`, id)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: interval %d", persistence.ErrNotFound, id)
		}
		return nil
	})
}

// DeleteImportedAt removes the calendar-imported interval of the property
// starting at start and reports whether one existed. Manual blocks are kept.
func (s *Storage) DeleteImportedAt(ctx context.Context, propertyID int64, start time.Time) (bool, error) {
	var deleted bool
	err := s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM availability_intervals WHERE property_id = ? AND start_time = ? AND source = ?`,
			propertyID, formatTime(start), string(persistence.IntervalOutlook))
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		deleted = affected > 0
		return nil
	})
	return deleted, err
}

// PurgeEndedBefore deletes intervals that ended before reference.
func (s *Storage) PurgeEndedBefore(ctx context.Context, reference time.Time) (int64, error) {
	var purged int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM availability_intervals WHERE end_time < ?`, formatTime(reference))
		if err != nil {
			return mapError(err)
		}
		purged, err = result.RowsAffected()
		return err
	})
	return purged, err
}

func scanInterval(row rowScanner) (persistence.AvailabilityInterval, error) {
	var (
		interval   persistence.AvailabilityInterval
		start, end string
		source     string
	)
	if err := row.Scan(&interval.ID, &interval.PropertyID, &start, &end, &interval.IsBlocked, &interval.Notes, &source); err != nil {
		return persistence.AvailabilityInterval{}, mapError(err)
	}
	interval.Source = persistence.IntervalSource(source)
	var err error
	if interval.Start, err = parseTime(start); err != nil {
		return persistence.AvailabilityInterval{}, err
	}
	if interval.End, err = parseTime(end); err != nil {
		return persistence.AvailabilityInterval{}, err
	}
	return interval, nil
}
