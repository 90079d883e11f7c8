package migration

import (
	"context"
	"time"
)

// Migration represents a schema migration with its metadata and SQL content.
type Migration struct {
	Version     string // Version identifier (e.g., "001", "002")
	Description string // Human-readable description of the migration
	SQL         string // SQL statements to execute
	FilePath    string // Path inside the migration filesystem
	Checksum    string // sha256 of the SQL content
}

// MigrationManager orchestrates the migration process.
type MigrationManager interface {
	// RunMigrations executes all pending migrations in sequential order.
	RunMigrations(ctx context.Context) error

	// GetPendingMigrations returns migrations that still need to be applied.
	GetPendingMigrations(ctx context.Context) ([]Migration, error)

	// GetMigrationStatus returns status information about migrations.
	GetMigrationStatus(ctx context.Context) (*MigrationStatus, error)
}

// FileScanner discovers migration files.
type FileScanner interface {
	// ScanMigrations scans the migration directory for migration files.
	ScanMigrations(migrationDir string) ([]Migration, error)

	// ValidateFileName checks if migration file follows naming convention.
	ValidateFileName(filename string) error
}

// Executor runs migrations against the database.
type Executor interface {
	// ExecuteMigration runs a single migration and records it within one transaction.
	ExecuteMigration(ctx context.Context, migration Migration) error

	// InitializeVersionTable creates the schema_migrations table if it doesn't exist.
	InitializeVersionTable(ctx context.Context) error

	// GetAppliedVersions returns all applied migration versions.
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}

// MigrationStatus provides information about the current migration state.
type MigrationStatus struct {
	CurrentVersion    string
	PendingCount      int
	AppliedMigrations []AppliedMigration
	PendingMigrations []Migration
}

// AppliedMigration represents a migration that has been successfully applied.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}
