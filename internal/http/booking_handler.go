package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/leasing-assistant/internal/application"
	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/slots"
)

type bookingService interface {
	Book(ctx context.Context, req application.BookRequest) (persistence.Booking, error)
	Cancel(ctx context.Context, bookingID int64) (persistence.Booking, error)
	RetryMirror(ctx context.Context, bookingID int64) (persistence.Booking, error)
	ListBookings(ctx context.Context, params application.ListBookingsParams) ([]persistence.Booking, error)
}

// BookingHandler serves the booking endpoints of the dashboard API.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewBookingHandler(service bookingService, loc *time.Location, now func() time.Time, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &BookingHandler{service: service, responder: newZonedResponder(base, loc), logger: base, loc: loc, now: now}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

// Create books a showing.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req bookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode booking request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, vErr := req.toInput(h.loc)
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	logger := h.log(r.Context(), "Create", "property_slug", input.PropertySlug)
	booking, err := h.service.Book(r.Context(), input)
	var mirrorErr *application.MirrorError
	switch {
	case errors.As(err, &mirrorErr):
		logger.WarnContext(r.Context(), "booking accepted without calendar mirror", "booking_id", booking.ID, "error_kind", application.ErrorKind(mirrorErr.Err))
		h.responder.writeJSON(r.Context(), w, http.StatusAccepted, bookingResponse{
			Booking: toBookingDTO(booking, h.loc),
			Warning: h.warning(mirrorErr.Err),
		})
		return
	case err != nil:
		logger.InfoContext(r.Context(), "booking refused", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("booking_id", booking.ID).InfoContext(r.Context(), "booking created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, bookingResponse{Booking: toBookingDTO(booking, h.loc)})
}

// List returns bookings in a window, optionally for one property.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	today := startOfDay(h.now(), h.loc)
	from, to, err := queryWindow(r, h.loc, today, 14*24*time.Hour, 92*24*time.Hour)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	query := r.URL.Query()
	params := application.ListBookingsParams{
		PropertySlug: strings.TrimSpace(query.Get("property")),
		From:         from,
		To:           to,
		ActiveOnly:   query.Get("active") == "true",
	}
	logger := h.log(r.Context(), "List", "property_slug", params.PropertySlug)
	bookings, err := h.service.ListBookings(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "booking list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(bookings)).DebugContext(r.Context(), "bookings listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBookingsResponse{Bookings: toBookingDTOs(bookings, h.loc)})
}

// Cancel cancels an active booking.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, err := pathID(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	logger := h.log(r.Context(), "Cancel", "booking_id", id)
	booking, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		logger.ErrorContext(r.Context(), "booking cancel failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking, h.loc)})
}

// RetryMirror re-attempts the calendar mirror of a pending booking.
func (h *BookingHandler) RetryMirror(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, err := pathID(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	logger := h.log(r.Context(), "RetryMirror", "booking_id", id)
	booking, err := h.service.RetryMirror(r.Context(), id)
	var mirrorErr *application.MirrorError
	switch {
	case errors.As(err, &mirrorErr):
		logger.WarnContext(r.Context(), "mirror retry failed", "error_kind", application.ErrorKind(mirrorErr.Err))
		h.responder.writeJSON(r.Context(), w, http.StatusAccepted, bookingResponse{
			Booking: toBookingDTO(booking, h.loc),
			Warning: h.warning(mirrorErr.Err),
		})
		return
	case err != nil:
		logger.ErrorContext(r.Context(), "mirror retry failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking mirrored", "status", string(booking.Status))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking, h.loc)})
}

func (h *BookingHandler) warning(err error) *errorResponse {
	kind := application.ErrorKind(err)
	return &errorResponse{ErrorCode: kind, Message: kindMessages[kind]}
}

type bookingRequest struct {
	Phone     string `json:"phone"`
	LeadID    int64  `json:"lead_id"`
	LeadName  string `json:"lead_name"`
	Property  string `json:"property"`
	Requested string `json:"requested"`
	Source    string `json:"source"`
	Notes     string `json:"notes"`
}

func (r bookingRequest) toInput(loc *time.Location) (application.BookRequest, *application.ValidationError) {
	source := persistence.BookingSource(strings.ToLower(strings.TrimSpace(r.Source)))
	if source == "" {
		source = persistence.SourceDashboard
	}
	input := application.BookRequest{
		Phone:        strings.TrimSpace(r.Phone),
		LeadID:       r.LeadID,
		LeadName:     strings.TrimSpace(r.LeadName),
		PropertySlug: strings.TrimSpace(r.Property),
		Source:       source,
		Notes:        strings.TrimSpace(r.Notes),
	}
	requested, err := slots.ParseRequested(r.Requested, loc)
	if err != nil {
		return input, &application.ValidationError{FieldErrors: map[string]string{
			"requested": "requested must be an RFC3339 instant or a local YYYY-MM-DDTHH:MM time",
		}}
	}
	input.Requested = requested
	return input, nil
}

type bookingResponse struct {
	Booking bookingDTO     `json:"booking"`
	Warning *errorResponse `json:"warning,omitempty"`
}

type listBookingsResponse struct {
	Bookings []bookingDTO `json:"bookings"`
}

type bookingDTO struct {
	ID              int64   `json:"id"`
	PropertyID      int64   `json:"property_id"`
	LeadID          int64   `json:"lead_id"`
	SlotStart       string  `json:"slot_start"`
	SlotEnd         string  `json:"slot_end"`
	DurationMinutes int     `json:"duration_minutes"`
	Status          string  `json:"status"`
	Source          string  `json:"source"`
	Notes           string  `json:"notes,omitempty"`
	ExternalEventID *string `json:"external_event_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func toBookingDTO(booking persistence.Booking, loc *time.Location) bookingDTO {
	return bookingDTO{
		ID:              booking.ID,
		PropertyID:      booking.PropertyID,
		LeadID:          booking.LeadID,
		SlotStart:       booking.SlotStart.In(loc).Format(time.RFC3339),
		SlotEnd:         booking.SlotEnd().In(loc).Format(time.RFC3339),
		DurationMinutes: booking.DurationMinutes,
		Status:          string(booking.Status),
		Source:          string(booking.Source),
		Notes:           booking.Notes,
		ExternalEventID: booking.ExternalEventID,
		CreatedAt:       booking.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       booking.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toBookingDTOs(bookings []persistence.Booking, loc *time.Location) []bookingDTO {
	dtos := make([]bookingDTO, 0, len(bookings))
	for _, booking := range bookings {
		dtos = append(dtos, toBookingDTO(booking, loc))
	}
	return dtos
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
}
