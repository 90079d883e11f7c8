package application

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/example/leasing-assistant/internal/calendar"
	"github.com/example/leasing-assistant/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"field": "invalid"}}
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected consistent message for populated error, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestConflictErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", &ConflictError{Suggestions: []time.Time{time.Unix(0, 0)}})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ConflictError to match ErrConflict")
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) || len(conflict.Suggestions) != 1 {
		t.Fatalf("expected suggestions to survive wrapping, got %v", conflict)
	}
}

func TestMirrorErrorUnwraps(t *testing.T) {
	t.Parallel()

	err := &MirrorError{BookingID: 7, Err: calendar.ErrRateLimited}
	if !errors.Is(err, calendar.ErrRateLimited) {
		t.Fatalf("expected MirrorError to unwrap to its cause")
	}
	if got := ErrorKind(err); got != "rate_limited" {
		t.Fatalf("expected rate_limited, got %q", got)
	}
}

func TestStoreErrorWrapsOnce(t *testing.T) {
	t.Parallel()

	if storeError(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
	err := storeError(storeError(persistence.ErrConflict))
	if !errors.Is(err, ErrStore) || !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected both sentinels, got %v", err)
	}
	if strings.Count(err.Error(), ErrStore.Error()) != 1 {
		t.Fatalf("expected a single store prefix, got %q", err.Error())
	}
}
