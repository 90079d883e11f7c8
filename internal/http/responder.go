package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/leasing-assistant/internal/application"
	"github.com/example/leasing-assistant/internal/logging"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errInvalidID      = errors.New("id must be a positive integer")
)

type responder struct {
	logger *slog.Logger
	loc    *time.Location
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger), loc: time.UTC}
}

func newZonedResponder(logger *slog.Logger, loc *time.Location) responder {
	r := newResponder(logger)
	if loc != nil {
		r.loc = loc
	}
	return r
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: "bad_request", Message: message})
}

// handleServiceError maps an application error to its status and body.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: "unexpected", Message: kindMessages["unexpected"]})
		return
	}

	kind := application.ErrorKind(err)
	body := errorResponse{ErrorCode: kind, Message: kindMessages[kind]}

	var conflict *application.ConflictError
	if errors.As(err, &conflict) {
		body.Suggestions = r.formatTimes(conflict.Suggestions)
	}
	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		body.Errors = vErr.FieldErrors
	}

	r.writeJSON(ctx, w, statusForKind(kind), body)
}

func (r responder) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(r.loc).Format(time.RFC3339)
}

func (r responder) formatTimes(times []time.Time) []string {
	if len(times) == 0 {
		return nil
	}
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, r.formatTime(t))
	}
	return out
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusForKind(kind string) int {
	switch kind {
	case "conflict":
		return http.StatusConflict
	case "past_time", "validation":
		return http.StatusUnprocessableEntity
	case "unknown_property", "unknown_lead", "not_found":
		return http.StatusNotFound
	case "degraded":
		return http.StatusServiceUnavailable
	case "auth_expired":
		return http.StatusUnauthorized
	case "rate_limited":
		return http.StatusTooManyRequests
	case "upstream_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var kindMessages = map[string]string{
	"conflict":         "The requested slot is not available.",
	"past_time":        "The requested time has already passed.",
	"unknown_property": "No property matches the request.",
	"unknown_lead":     "No lead matches the request.",
	"not_found":        "The requested resource was not found.",
	"degraded":         "The calendar cannot be checked right now. Try again shortly.",
	"auth_expired":     "The calendar connection needs to be re-authorised.",
	"rate_limited":     "The calendar provider is throttling requests.",
	"upstream_error":   "The calendar provider returned an error.",
	"store_error":      "The booking store failed.",
	"validation":       "Some fields are invalid.",
	"unexpected":       "An unexpected error occurred.",
}

type errorResponse struct {
	ErrorCode   string            `json:"error_code,omitempty"`
	Message     string            `json:"message"`
	Errors      map[string]string `json:"errors,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
}
