package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/leasing-assistant/internal/application"
)

type reconciler interface {
	Tick(ctx context.Context) (application.TickReport, error)
}

// ReconcileHandler runs an on-demand reconciliation pass.
type ReconcileHandler struct {
	service   reconciler
	responder responder
	logger    *slog.Logger
}

func NewReconcileHandler(service reconciler, logger *slog.Logger) *ReconcileHandler {
	base := defaultLogger(logger)
	return &ReconcileHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := handlerLogger(r.Context(), h.logger, "ReconcileHandler", "Run")
	report, err := h.service.Tick(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "reconciliation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reconciliation completed", "mutations", report.Mutations())
	h.responder.writeJSON(r.Context(), w, http.StatusOK, reconcileResponse{Report: report})
}

type reconcileResponse struct {
	Report application.TickReport `json:"report"`
}
