package http

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger prefers the request logger attached by RequestLogger and tags
// it with the handler, the operation and, once chi has matched one, the route
// pattern.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	pairs := make([]any, 0, 6+len(attrs))
	pairs = append(pairs, "handler", handlerName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			pairs = append(pairs, "route", pattern)
		}
	}
	pairs = append(pairs, attrs...)
	return logger.With(pairs...)
}
