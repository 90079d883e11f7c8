package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/leasing-assistant/internal/persistence"
)

const leadColumns = `id, phone, name, created_at`

// UpsertLead returns the lead for phone, creating it when missing. A non-empty
// name replaces the stored one.
func (s *Storage) UpsertLead(ctx context.Context, phone, name string) (persistence.Lead, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return persistence.Lead{}, persistence.ErrConstraintViolation
	}

	var lead persistence.Lead
	err := s.write(ctx, func(tx *sql.Tx) error {
		const upsert = `
			INSERT INTO leads (phone, name, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT (phone) DO UPDATE SET name = excluded.name
			WHERE excluded.name <> '' AND excluded.name <> leads.name
		`
		if _, err := tx.ExecContext(ctx, upsert, phone, strings.TrimSpace(name), formatTime(s.timestamp())); err != nil {
			return mapError(err)
		}

		var err error
		lead, err = scanLead(tx.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE phone = ?`, phone))
		return err
	})
	return lead, err
}

// GetLead fetches a lead by id.
func (s *Storage) GetLead(ctx context.Context, id int64) (persistence.Lead, error) {
	return scanLead(s.pool.DB().QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
}

func scanLead(row rowScanner) (persistence.Lead, error) {
	var (
		lead      persistence.Lead
		createdAt string
	)
	if err := row.Scan(&lead.ID, &lead.Phone, &lead.Name, &createdAt); err != nil {
		return persistence.Lead{}, mapError(err)
	}
	var err error
	if lead.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Lead{}, err
	}
	return lead, nil
}
