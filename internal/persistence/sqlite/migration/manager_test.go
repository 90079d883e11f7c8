package migration

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrationsAppliesInOrder(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_init.sql":   {Data: []byte("-- Description: init\nCREATE TABLE a (id INTEGER);")},
		"m/002_second.sql": {Data: []byte("CREATE TABLE b (id INTEGER);\nINSERT INTO b (id) VALUES (1);")},
		"m/README.md":      {Data: []byte("ignored")},
	}

	manager := NewMigrationManager(NewFileScanner(fsys), NewSQLiteExecutor(db), "m", nil)
	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}

	status, err := manager.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != "002" || status.PendingCount != 0 || len(status.AppliedMigrations) != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM b").Scan(&count); err != nil || count != 1 {
		t.Fatalf("expected seeded row, got %d, %v", count, err)
	}
}

func TestRunMigrationsRejectsGap(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_init.sql":  {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"m/003_third.sql": {Data: []byte("CREATE TABLE c (id INTEGER);")},
	}

	manager := NewMigrationManager(NewFileScanner(fsys), NewSQLiteExecutor(db), "m", nil)
	err := manager.RunMigrations(context.Background())
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestRunMigrationsDetectsEditedFile(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_init.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
	}

	if err := NewMigrationManager(NewFileScanner(fsys), NewSQLiteExecutor(db), "m", nil).RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	fsys["m/001_init.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id INTEGER, name TEXT);")}
	err := NewMigrationManager(NewFileScanner(fsys), NewSQLiteExecutor(db), "m", nil).RunMigrations(ctx)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestRunMigrationsRollsBackFailedFile(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_broken.sql": {Data: []byte("CREATE TABLE ok (id INTEGER);\nCREATE TABLE ok (id INTEGER);")},
	}

	err := NewMigrationManager(NewFileScanner(fsys), NewSQLiteExecutor(db), "m", nil).RunMigrations(ctx)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}

	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'ok'").Scan(&name)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected table creation to roll back, got %q, %v", name, err)
	}
}

func TestValidateFileName(t *testing.T) {
	scanner := NewFileScanner(fstest.MapFS{})
	if err := scanner.ValidateFileName("001_initial_schema.sql"); err != nil {
		t.Fatalf("expected valid name, got %v", err)
	}
	if err := scanner.ValidateFileName("initial.sql"); !errors.Is(err, ErrInvalidMigrationFile) {
		t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
	}
}
