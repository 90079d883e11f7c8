package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/leasing-assistant/internal/application"
	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/slots"
)

type settingsService interface {
	OpenHours(ctx context.Context) (slots.OpenHours, error)
	UpdateOpenHours(ctx context.Context, input map[time.Weekday]persistence.DayHours) (slots.OpenHours, error)
	AddBlock(ctx context.Context, input application.BlockInput) (persistence.AvailabilityInterval, error)
	ListBlocks(ctx context.Context, propertySlug string, from, to time.Time) ([]persistence.AvailabilityInterval, error)
	DeleteBlock(ctx context.Context, id int64) error
}

var weekdayKeys = []struct {
	key string
	day time.Weekday
}{
	{"monday", time.Monday},
	{"tuesday", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"thursday", time.Thursday},
	{"friday", time.Friday},
	{"saturday", time.Saturday},
	{"sunday", time.Sunday},
}

// SettingsHandler serves open hours and manual availability blocks.
type SettingsHandler struct {
	service   settingsService
	responder responder
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewSettingsHandler(service settingsService, loc *time.Location, now func() time.Time, logger *slog.Logger) *SettingsHandler {
	base := defaultLogger(logger)
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &SettingsHandler{service: service, responder: newZonedResponder(base, loc), logger: base, loc: loc, now: now}
}

func (h *SettingsHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "SettingsHandler", operation, attrs...)
}

func (h *SettingsHandler) GetOpenHours(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	hours, err := h.service.OpenHours(r.Context())
	if err != nil {
		h.log(r.Context(), "GetOpenHours").ErrorContext(r.Context(), "open hours lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, openHoursResponse{OpenHours: toOpenHoursDTO(hours), TimeZone: h.loc.String()})
}

func (h *SettingsHandler) PutOpenHours(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req openHoursRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input := make(map[time.Weekday]persistence.DayHours, len(req.OpenHours))
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}
	for key, window := range req.OpenHours {
		day, ok := weekdayFromKey(key)
		if !ok {
			vErr.FieldErrors[key] = "unknown weekday"
			continue
		}
		if window.Closed {
			input[day] = persistence.DayHours{Start: "00:00", End: "00:00"}
			continue
		}
		input[day] = persistence.DayHours{Start: strings.TrimSpace(window.Start), End: strings.TrimSpace(window.End)}
	}
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	hours, err := h.service.UpdateOpenHours(r.Context(), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.log(r.Context(), "PutOpenHours").InfoContext(r.Context(), "open hours replaced")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, openHoursResponse{OpenHours: toOpenHoursDTO(hours), TimeZone: h.loc.String()})
}

func (h *SettingsHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug := mux.Vars(r)["slug"]
	from, to, err := queryWindow(r, h.loc, startOfDay(h.now(), h.loc), 31*24*time.Hour, 366*24*time.Hour)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	blocks, err := h.service.ListBlocks(r.Context(), slug, from, to)
	if err != nil {
		h.log(r.Context(), "ListBlocks", "property_slug", slug).ErrorContext(r.Context(), "block list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]blockDTO, 0, len(blocks))
	for _, block := range blocks {
		dtos = append(dtos, h.toBlockDTO(block))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBlocksResponse{Blocks: dtos})
}

func (h *SettingsHandler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug := mux.Vars(r)["slug"]
	var req blockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input := application.BlockInput{PropertySlug: slug, Notes: req.Notes}
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}
	if strings.TrimSpace(req.Start) != "" {
		start, err := parseTime(req.Start, h.loc)
		if err != nil {
			vErr.FieldErrors["start"] = "start is not a valid time"
		}
		input.Start = start
	}
	if strings.TrimSpace(req.End) != "" {
		end, err := parseTime(req.End, h.loc)
		if err != nil {
			vErr.FieldErrors["end"] = "end is not a valid time"
		}
		input.End = end
	}
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	block, err := h.service.AddBlock(r.Context(), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, blockResponse{Block: h.toBlockDTO(block)})
}

func (h *SettingsHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, err := pathID(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.DeleteBlock(r.Context(), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *SettingsHandler) toBlockDTO(block persistence.AvailabilityInterval) blockDTO {
	return blockDTO{
		ID:         block.ID,
		PropertyID: block.PropertyID,
		Start:      h.responder.formatTime(block.Start),
		End:        h.responder.formatTime(block.End),
		Notes:      block.Notes,
		Source:     string(block.Source),
	}
}

func weekdayFromKey(key string) (time.Weekday, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, entry := range weekdayKeys {
		if entry.key == key || entry.key[:3] == key {
			return entry.day, true
		}
	}
	return 0, false
}

func toOpenHoursDTO(hours slots.OpenHours) map[string]dayHoursDTO {
	out := make(map[string]dayHoursDTO, len(weekdayKeys))
	for _, entry := range weekdayKeys {
		window := hours[entry.day]
		out[entry.key] = dayHoursDTO{
			Start:  window.Start.String(),
			End:    window.End.String(),
			Closed: window.Closed(),
		}
	}
	return out
}

type dayHoursDTO struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Closed bool   `json:"closed,omitempty"`
}

type openHoursRequest struct {
	OpenHours map[string]dayHoursDTO `json:"open_hours"`
}

type openHoursResponse struct {
	OpenHours map[string]dayHoursDTO `json:"open_hours"`
	TimeZone  string                 `json:"time_zone"`
}

type blockRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Notes string `json:"notes"`
}

type blockDTO struct {
	ID         int64  `json:"id"`
	PropertyID int64  `json:"property_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Notes      string `json:"notes,omitempty"`
	Source     string `json:"source"`
}

type blockResponse struct {
	Block blockDTO `json:"block"`
}

type listBlocksResponse struct {
	Blocks []blockDTO `json:"blocks"`
}
