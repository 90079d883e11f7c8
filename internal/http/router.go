package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

type RouterConfig struct {
	Bookings   *BookingHandler
	Properties *PropertyHandler
	Settings   *SettingsHandler
	Reconcile  *ReconcileHandler
	OAuth      *OAuthHandler
	Events     *EventsHandler
	Logger     *slog.Logger
	Middleware []mux.MiddlewareFunc
}

// NewRouter wires every configured handler. Request logging and panic
// recovery wrap the whole router; Middleware runs on matched routes only.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	router := mux.NewRouter()
	for _, middleware := range cfg.Middleware {
		if middleware != nil {
			router.Use(middleware)
		}
	}

	notFound := newResponder(logger)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notFound.writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{ErrorCode: "not_found", Message: kindMessages["not_found"]})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notFound.writeJSON(r.Context(), w, http.StatusMethodNotAllowed, errorResponse{ErrorCode: "method_not_allowed", Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	if cfg.Bookings != nil {
		api.HandleFunc("/bookings", cfg.Bookings.List).Methods(http.MethodGet)
		api.HandleFunc("/bookings", cfg.Bookings.Create).Methods(http.MethodPost)
		api.HandleFunc("/bookings/{id:[0-9]+}/cancel", cfg.Bookings.Cancel).Methods(http.MethodPost)
		api.HandleFunc("/bookings/{id:[0-9]+}/mirror", cfg.Bookings.RetryMirror).Methods(http.MethodPost)
	}

	if cfg.Properties != nil {
		api.HandleFunc("/properties", cfg.Properties.List).Methods(http.MethodGet)
		api.HandleFunc("/properties/{slug}/availability", cfg.Properties.Availability).Methods(http.MethodGet)
	}

	if cfg.Settings != nil {
		api.HandleFunc("/properties/{slug}/blocks", cfg.Settings.ListBlocks).Methods(http.MethodGet)
		api.HandleFunc("/properties/{slug}/blocks", cfg.Settings.CreateBlock).Methods(http.MethodPost)
		api.HandleFunc("/blocks/{id:[0-9]+}", cfg.Settings.DeleteBlock).Methods(http.MethodDelete)
		api.HandleFunc("/settings/open-hours", cfg.Settings.GetOpenHours).Methods(http.MethodGet)
		api.HandleFunc("/settings/open-hours", cfg.Settings.PutOpenHours).Methods(http.MethodPut)
	}

	if cfg.Reconcile != nil {
		api.HandleFunc("/reconcile", cfg.Reconcile.Run).Methods(http.MethodPost)
	}

	if cfg.Events != nil {
		api.HandleFunc("/events", cfg.Events.Stream).Methods(http.MethodGet)
	}

	if cfg.OAuth != nil {
		auth := router.PathPrefix("/auth/outlook").Subrouter()
		auth.HandleFunc("/connect", cfg.OAuth.Connect).Methods(http.MethodGet)
		auth.HandleFunc("/callback", cfg.OAuth.Callback).Methods(http.MethodGet)
	}

	return RequestLogger(logger)(Recover(logger)(router))
}
