// Package logger builds the structured loggers used across the backbone and
// carries request-scoped context (correlation id, trace id) into log
// attributes.
package logger

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/backbone/common/correlation"
)

// New creates a JSON structured logger tagged with the owning service name.
// Level is read from LOG_LEVEL (DEBUG|INFO|WARN|ERROR), defaulting to INFO.
func New(serviceName string) *slog.Logger {
	level := getLogLevel(os.Getenv("LOG_LEVEL"))

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler).With(slog.String("service", serviceName))
}

func getLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "INFO", "info":
		return slog.LevelInfo
	case "WARN", "warn":
		return slog.LevelWarn
	case "ERROR", "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext enriches l with the correlation id carried in ctx (§4.1) and,
// when a valid span is active, the active trace/span id. The gateway's
// request logging stage calls this so every request log line carries the
// request's correlation_id.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	if id := correlation.FromContext(ctx); id != "" {
		l = l.With(slog.String("correlation_id", id))
	}
	if spanCtx := trace.SpanFromContext(ctx).SpanContext(); spanCtx.IsValid() {
		l = l.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return l
}
