package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/leasing-assistant/internal/notify"
)

// keepAlive is the interval between SSE comment frames on an idle stream.
const keepAlive = 15 * time.Second

type eventSource interface {
	Subscribe(buffer int) *notify.Subscription
}

// EventsHandler streams booking events to dashboards as server-sent events.
type EventsHandler struct {
	topic     eventSource
	logger    *slog.Logger
	keepAlive time.Duration
}

func NewEventsHandler(topic eventSource, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{topic: topic, logger: defaultLogger(logger), keepAlive: keepAlive}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.topic == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	logger := handlerLogger(ctx, h.logger, "EventsHandler", "Stream")
	controller := http.NewResponseController(w)
	// The server write timeout would otherwise cut long-lived streams.
	_ = controller.SetWriteDeadline(time.Time{})

	sub := h.topic.Subscribe(notify.DefaultBuffer)
	defer func() {
		sub.Close()
		logger.DebugContext(ctx, "event stream closed", "dropped", sub.Dropped())
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := controller.Flush(); err != nil {
		logger.WarnContext(ctx, "streaming unsupported", "error", err)
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C():
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				logger.ErrorContext(ctx, "failed to encode event", "event_id", event.ID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, payload); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := controller.Flush(); err != nil {
			return
		}
	}
}
