package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/leasing-assistant/internal/persistence"
)

const bookingColumns = `id, property_id, lead_id, slot_start, duration_minutes, status, source, notes,
	external_event_id, created_at, updated_at`

const defaultDurationMinutes = 30

// CreateBooking inserts a booking. A second active booking for the same
// (property, slot) fails with persistence.ErrConflict.
func (s *Storage) CreateBooking(ctx context.Context, booking persistence.Booking) (persistence.Booking, error) {
	if booking.PropertyID == 0 || booking.LeadID == 0 || booking.SlotStart.IsZero() {
		return persistence.Booking{}, persistence.ErrConstraintViolation
	}
	if booking.DurationMinutes <= 0 {
		booking.DurationMinutes = defaultDurationMinutes
	}
	if booking.Status == "" {
		booking.Status = persistence.BookingPending
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = s.timestamp()
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}

	var created persistence.Booking
	err := s.write(ctx, func(tx *sql.Tx) error {
		const insert = `
			INSERT INTO bookings (property_id, lead_id, slot_start, duration_minutes, status, source, notes,
				external_event_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		result, err := tx.ExecContext(ctx, insert,
			booking.PropertyID,
			booking.LeadID,
			formatTime(booking.SlotStart),
			booking.DurationMinutes,
			string(booking.Status),
			string(booking.Source),
			booking.Notes,
			nullableString(booking.ExternalEventID),
			formatTime(booking.CreatedAt),
			formatTime(booking.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: read booking id: %w", err)
		}
		created, err = getBooking(ctx, tx, id)
		return err
	})
	return created, err
}

// GetBooking fetches a booking by id.
func (s *Storage) GetBooking(ctx context.Context, id int64) (persistence.Booking, error) {
	return getBooking(ctx, s.pool.DB(), id)
}

// GetActiveBookingAt returns the pending or confirmed booking occupying the slot.
func (s *Storage) GetActiveBookingAt(ctx context.Context, propertyID int64, slotStart time.Time) (persistence.Booking, error) {
	return scanBooking(s.pool.DB().QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE property_id = ? AND slot_start = ? AND status IN ('pending', 'confirmed')`,
		propertyID, formatTime(slotStart)))
}

// GetBookingByExternalID returns the booking linked to an external calendar event.
func (s *Storage) GetBookingByExternalID(ctx context.Context, externalID string) (persistence.Booking, error) {
	return scanBooking(s.pool.DB().QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE external_event_id = ?`, externalID))
}

// ListBookings returns bookings matching the filter ordered by slot start.
func (s *Storage) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.PropertyID != 0 {
		conditions = append(conditions, "property_id = ?")
		args = append(args, filter.PropertyID)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "slot_start >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "slot_start < ?")
		args = append(args, formatTime(filter.To))
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "status IN ('pending', 'confirmed')")
	}
	if filter.LinkedOnly {
		conditions = append(conditions, "external_event_id IS NOT NULL")
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY slot_start, id"

	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var bookings []persistence.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return bookings, nil
}

// ConfirmBooking marks an active booking confirmed and links externalID when
// given. Confirming a cancelled booking fails with persistence.ErrConflict.
func (s *Storage) ConfirmBooking(ctx context.Context, id int64, externalID *string, at time.Time) (persistence.Booking, error) {
	var confirmed persistence.Booking
	err := s.write(ctx, func(tx *sql.Tx) error {
		const update = `
			UPDATE bookings
			SET status = 'confirmed',
				external_event_id = COALESCE(?, external_event_id),
				updated_at = ?
			WHERE id = ? AND status IN ('pending', 'confirmed')
		`
		result, err := tx.ExecContext(ctx, update, nullableString(externalID), formatTime(at), id)
		if err != nil {
			return mapError(err)
		}
		if err := requireAffected(ctx, tx, result, id); err != nil {
			return err
		}
		confirmed, err = getBooking(ctx, tx, id)
		return err
	})
	return confirmed, err
}

// CancelBooking cancels the booking and reports whether its status changed.
func (s *Storage) CancelBooking(ctx context.Context, id int64, at time.Time) (persistence.Booking, bool, error) {
	var (
		cancelled persistence.Booking
		changed   bool
	)
	err := s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = 'cancelled', updated_at = ? WHERE id = ? AND status <> 'cancelled'`,
			formatTime(at), id)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		changed = affected > 0
		cancelled, err = getBooking(ctx, tx, id)
		return err
	})
	return cancelled, changed, err
}

// MoveBooking moves an active booking to slotStart. persistence.ErrConflict is
// returned when another active booking holds that slot.
func (s *Storage) MoveBooking(ctx context.Context, id int64, slotStart time.Time, at time.Time) (persistence.Booking, error) {
	var moved persistence.Booking
	err := s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET slot_start = ?, updated_at = ? WHERE id = ? AND status IN ('pending', 'confirmed')`,
			formatTime(slotStart), formatTime(at), id)
		if err != nil {
			return mapError(err)
		}
		if err := requireAffected(ctx, tx, result, id); err != nil {
			return err
		}
		moved, err = getBooking(ctx, tx, id)
		return err
	})
	return moved, err
}

// requireAffected distinguishes a missing booking from one whose status
// excluded it from the update.
func requireAffected(ctx context.Context, tx *sql.Tx, result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := getBooking(ctx, tx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: booking %d is cancelled", persistence.ErrConflict, id)
}

func getBooking(ctx context.Context, q queryer, id int64) (persistence.Booking, error) {
	booking, err := scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.Booking{}, fmt.Errorf("%w: booking %d", persistence.ErrNotFound, id)
	}
	return booking, err
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		booking              persistence.Booking
		status, source       string
		slotStart            string
		externalID           sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&booking.ID,
		&booking.PropertyID,
		&booking.LeadID,
		&slotStart,
		&booking.DurationMinutes,
		&status,
		&source,
		&booking.Notes,
		&externalID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Booking{}, mapError(err)
	}

	booking.Status = persistence.BookingStatus(status)
	booking.Source = persistence.BookingSource(source)
	booking.ExternalEventID = stringPtr(externalID)

	var err error
	if booking.SlotStart, err = parseTime(slotStart); err != nil {
		return persistence.Booking{}, err
	}
	if booking.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Booking{}, err
	}
	return booking, nil
}
