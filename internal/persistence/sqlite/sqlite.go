package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage implements every persistence repository on top of a single SQLite database.
type Storage struct {
	pool   *ConnectionPool
	retry  RetryConfig
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ persistence.PropertyRepository        = (*Storage)(nil)
	_ persistence.LeadRepository            = (*Storage)(nil)
	_ persistence.BookingRepository         = (*Storage)(nil)
	_ persistence.AvailabilityRepository    = (*Storage)(nil)
	_ persistence.SettingsRepository        = (*Storage)(nil)
	_ persistence.CalendarAccountRepository = (*Storage)(nil)
)

// Option customises Storage construction.
type Option func(*Storage)

// WithLogger sets the logger used for migrations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for server-side timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects to the database at dsn. Call Migrate before first use.
func Open(dsn string, opts ...Option) (*Storage, error) {
	pool, err := NewConnectionPool(Config{DSN: dsn})
	if err != nil {
		return nil, err
	}

	s := &Storage{
		pool:   pool,
		retry:  DefaultRetryConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// DB exposes the raw handle for diagnostics and tests.
func (s *Storage) DB() *sql.DB {
	return s.pool.DB()
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := s.migrationManager()
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// MigrationStatus reports applied and pending embedded migrations.
func (s *Storage) MigrationStatus(ctx context.Context) (*migration.MigrationStatus, error) {
	return s.migrationManager().GetMigrationStatus(ctx)
}

func (s *Storage) migrationManager() migration.MigrationManager {
	return migration.NewMigrationManager(
		migration.NewFileScanner(migrationFiles),
		migration.NewSQLiteExecutor(s.pool.DB()),
		"migrations",
		s.logger,
	)
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.DB().PingContext(ctx)
}

func (s *Storage) write(ctx context.Context, fn TransactionFunc) error {
	return withRetry(ctx, s.retry, func() error {
		return s.pool.WithTransaction(ctx, fn)
	})
}

func (s *Storage) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
