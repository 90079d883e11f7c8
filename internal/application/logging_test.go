package application

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/example/leasing-assistant/internal/calendar"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "conflict", err: &ConflictError{}, want: "conflict"},
		{name: "conflict sentinel", err: fmt.Errorf("%w: cancelled", ErrConflict), want: "conflict"},
		{name: "past", err: ErrPastTime, want: "past_time"},
		{name: "unknown property", err: ErrUnknownProperty, want: "unknown_property"},
		{name: "unknown lead", err: ErrUnknownLead, want: "unknown_lead"},
		{name: "degraded wins over cause", err: fmt.Errorf("%w: %w", ErrDegraded, calendar.ErrRateLimited), want: "degraded"},
		{name: "auth expired", err: calendar.ErrAuthExpired, want: "auth_expired"},
		{name: "not connected", err: calendar.ErrNotConnected, want: "auth_expired"},
		{name: "rate limited", err: calendar.ErrRateLimited, want: "rate_limited"},
		{name: "upstream", err: &calendar.UpstreamError{Status: 502}, want: "upstream_error"},
		{name: "not found", err: ErrNotFound, want: "not_found"},
		{name: "store", err: storeError(errors.New("locked")), want: "store_error"},
		{name: "validation", err: &ValidationError{}, want: "validation"},
		{name: "other", err: errors.New("boom"), want: "unexpected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
