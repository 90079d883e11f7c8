package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/leasing-assistant/internal/persistence/sqlite"
)

// SQLiteHarness wraps a migrated temporary SQLite store.
type SQLiteHarness struct {
	Storage *sqlite.Storage

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a store in a temporary file and migrates it. The
// store is closed when the test finishes.
func NewSQLiteHarness(tb testing.TB, opts ...sqlite.Option) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "leasing.db")
	storage, err := sqlite.Open(path, opts...)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage: storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}
