package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/leasing-assistant/internal/application"
	"github.com/example/leasing-assistant/internal/persistence"
)

type propertyService interface {
	GetProperty(ctx context.Context, slug string) (persistence.Property, error)
	ListProperties(ctx context.Context) ([]persistence.Property, error)
}

type availabilityOracle interface {
	FreeSlots(ctx context.Context, propertyID int64, from, to time.Time) (application.Availability, error)
}

// maxAvailabilitySpan bounds one availability query.
const maxAvailabilitySpan = 31 * 24 * time.Hour

// PropertyHandler lists properties and answers availability queries.
type PropertyHandler struct {
	properties propertyService
	oracle     availabilityOracle
	responder  responder
	logger     *slog.Logger
	loc        *time.Location
	now        func() time.Time
}

func NewPropertyHandler(properties propertyService, oracle availabilityOracle, loc *time.Location, now func() time.Time, logger *slog.Logger) *PropertyHandler {
	base := defaultLogger(logger)
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &PropertyHandler{properties: properties, oracle: oracle, responder: newZonedResponder(base, loc), logger: base, loc: loc, now: now}
}

func (h *PropertyHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "PropertyHandler", operation, attrs...)
}

func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.properties == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	properties, err := h.properties.ListProperties(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "property list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]propertyDTO, 0, len(properties))
	for _, property := range properties {
		dtos = append(dtos, propertyDTO{ID: property.ID, Slug: property.Slug, Address: property.Address})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listPropertiesResponse{Properties: dtos})
}

// Availability returns the free slots of one property. A degraded answer is
// still 200; the degraded flag tells the caller the external calendar was
// not consulted.
func (h *PropertyHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.properties == nil || h.oracle == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug := mux.Vars(r)["slug"]
	logger := h.log(r.Context(), "Availability", "property_slug", slug)

	from, to, err := queryWindow(r, h.loc, h.now(), 7*24*time.Hour, maxAvailabilitySpan)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	property, err := h.properties.GetProperty(r.Context(), slug)
	if err != nil {
		logger.InfoContext(r.Context(), "property lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	availability, err := h.oracle.FreeSlots(r.Context(), property.ID, from, to)
	if err != nil {
		logger.ErrorContext(r.Context(), "availability failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := availabilityResponse{
		Property: slug,
		From:     h.responder.formatTime(availability.From),
		To:       h.responder.formatTime(availability.To),
		Slots:    h.responder.formatTimes(availability.Slots),
		Degraded: availability.Degraded,
	}
	if response.Slots == nil {
		response.Slots = []string{}
	}
	if availability.Degraded {
		response.DegradedReason = application.ErrorKind(availability.Cause)
		logger.WarnContext(r.Context(), "availability degraded", "error", availability.Cause, "error_kind", response.DegradedReason)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

type propertyDTO struct {
	ID      int64  `json:"id"`
	Slug    string `json:"slug"`
	Address string `json:"address"`
}

type listPropertiesResponse struct {
	Properties []propertyDTO `json:"properties"`
}

type availabilityResponse struct {
	Property       string   `json:"property"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	Slots          []string `json:"slots"`
	Degraded       bool     `json:"degraded"`
	DegradedReason string   `json:"degraded_reason,omitempty"`
}
