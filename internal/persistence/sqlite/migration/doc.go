// Package migration applies versioned schema changes to the leasing SQLite store.
//
// Migrations are read from an fs.FS (normally an embedded directory) and must follow
// the naming convention {version}_{description}.sql, e.g. "001_initial_schema.sql".
// Each migration runs inside a transaction together with its bookkeeping row in the
// schema_migrations table, so a failed file leaves no partial schema behind.
//
// Example usage:
//
//	manager := NewMigrationManager(NewFileScanner(migrationsFS), NewSQLiteExecutor(db), ".", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
