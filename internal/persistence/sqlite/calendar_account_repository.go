package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/leasing-assistant/internal/persistence"
)

// GetCalendarAccount loads the stored credentials for (userKey, provider).
func (s *Storage) GetCalendarAccount(ctx context.Context, userKey, provider string) (persistence.CalendarAccount, error) {
	var (
		account           persistence.CalendarAccount
		expiry, updatedAt string
	)
	err := s.pool.DB().QueryRowContext(ctx, `
		SELECT user_key, provider, account_email, access_token, refresh_token, token_expiry, updated_at
		FROM calendar_accounts
		WHERE user_key = ? AND provider = ?`, userKey, provider).Scan(
		&account.UserKey,
		&account.Provider,
		&account.AccountEmail,
		&account.AccessToken,
		&account.RefreshToken,
		&expiry,
		&updatedAt,
	)
	if err != nil {
		return persistence.CalendarAccount{}, mapError(err)
	}
	if account.TokenExpiry, err = parseTime(expiry); err != nil {
		return persistence.CalendarAccount{}, err
	}
	if account.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.CalendarAccount{}, err
	}
	return account, nil
}

// SaveCalendarAccount inserts or replaces the credentials for (UserKey, Provider).
// An empty AccountEmail keeps the previously stored address.
func (s *Storage) SaveCalendarAccount(ctx context.Context, account persistence.CalendarAccount) error {
	if strings.TrimSpace(account.UserKey) == "" || strings.TrimSpace(account.Provider) == "" {
		return persistence.ErrConstraintViolation
	}
	updatedAt := account.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.timestamp()
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		const upsert = `
			INSERT INTO calendar_accounts (user_key, provider, account_email, access_token, refresh_token, token_expiry, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_key, provider) DO UPDATE SET
				account_email = CASE WHEN excluded.account_email <> '' THEN excluded.account_email ELSE calendar_accounts.account_email END,
				access_token = excluded.access_token,
				refresh_token = excluded.refresh_token,
				token_expiry = excluded.token_expiry,
				updated_at = excluded.updated_at
		`
		_, err := tx.ExecContext(ctx, upsert,
			account.UserKey,
			account.Provider,
			account.AccountEmail,
			account.AccessToken,
			account.RefreshToken,
			formatTime(account.TokenExpiry),
			formatTime(updatedAt),
		)
		return mapError(err)
	})
}
