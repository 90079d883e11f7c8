package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/leasing-assistant/internal/persistence"
)

const propertyColumns = `id, slug, address, created_at`

// UpsertProperty inserts the property or updates the address of an existing slug.
func (s *Storage) UpsertProperty(ctx context.Context, slug, address string) (persistence.Property, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return persistence.Property{}, persistence.ErrConstraintViolation
	}

	var property persistence.Property
	err := s.write(ctx, func(tx *sql.Tx) error {
		const upsert = `
			INSERT INTO properties (slug, address, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT (slug) DO UPDATE SET address = excluded.address
		`
		if _, err := tx.ExecContext(ctx, upsert, slug, strings.TrimSpace(address), formatTime(s.timestamp())); err != nil {
			return mapError(err)
		}

		var err error
		property, err = scanProperty(tx.QueryRowContext(ctx,
			`SELECT `+propertyColumns+` FROM properties WHERE slug = ?`, slug))
		return err
	})
	return property, err
}

// GetProperty fetches a property by id.
func (s *Storage) GetProperty(ctx context.Context, id int64) (persistence.Property, error) {
	return scanProperty(s.pool.DB().QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id))
}

// GetPropertyBySlug fetches a property by its URL slug.
func (s *Storage) GetPropertyBySlug(ctx context.Context, slug string) (persistence.Property, error) {
	return scanProperty(s.pool.DB().QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE slug = ?`, strings.TrimSpace(slug)))
}

// ListProperties returns every property ordered by id.
func (s *Storage) ListProperties(ctx context.Context) ([]persistence.Property, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT `+propertyColumns+` FROM properties ORDER BY id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var properties []persistence.Property
	for rows.Next() {
		property, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		properties = append(properties, property)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return properties, nil
}

func scanProperty(row rowScanner) (persistence.Property, error) {
	var (
		property  persistence.Property
		createdAt string
	)
	if err := row.Scan(&property.ID, &property.Slug, &property.Address, &createdAt); err != nil {
		return persistence.Property{}, mapError(err)
	}
	var err error
	if property.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Property{}, err
	}
	return property, nil
}
