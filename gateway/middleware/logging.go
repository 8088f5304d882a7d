// Package middleware holds the gateway's fixed HTTP pipeline stages:
// request logging and JWT identity validation. Rate limiting, caching, and
// compression live in their own packages since each carries real state.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/orderflow/backbone/common/correlation"
	"github.com/orderflow/backbone/common/logger"
)

// RequestLogging logs one line per request with method, path, status,
// duration and the correlation id minted or echoed upstream.
func RequestLogging(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log := logger.WithContext(r.Context(), base)
			log.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("correlation_id", correlation.FromContext(r.Context())),
			)
		})
	}
}
