package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/leasing-assistant/internal/calendar"
	"github.com/example/leasing-assistant/internal/logging"
	"github.com/example/leasing-assistant/internal/persistence"
)

var defaultLogger = logging.OrDefault

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	return logging.Scoped(ctx, base, "service", serviceName, operation, attrs...)
}

// ErrorKind maps an error to the stable label handed to transports and the
// SMS reply generator.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) || errors.Is(err, ErrConflict) {
		return "conflict"
	}

	switch {
	case errors.Is(err, ErrPastTime):
		return "past_time"
	case errors.Is(err, ErrUnknownProperty):
		return "unknown_property"
	case errors.Is(err, ErrUnknownLead):
		return "unknown_lead"
	case errors.Is(err, ErrDegraded):
		return "degraded"
	case errors.Is(err, calendar.ErrAuthExpired), errors.Is(err, calendar.ErrNotConnected):
		return "auth_expired"
	case errors.Is(err, calendar.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, calendar.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStore),
		errors.Is(err, persistence.ErrNotFound),
		errors.Is(err, persistence.ErrConflict),
		errors.Is(err, persistence.ErrConstraintViolation):
		return "store_error"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
