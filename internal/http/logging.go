package http

import (
	"context"
	"log/slog"

	"github.com/example/leasing-assistant/internal/logging"
)

var defaultLogger = logging.OrDefault

func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	return logging.Scoped(ctx, fallback, "handler", handlerName, operation, attrs...)
}
