package gateway

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orderflow/backbone/common/apperr"
	"github.com/orderflow/backbone/common/config"
	"github.com/orderflow/backbone/common/correlation"
	"github.com/orderflow/backbone/gateway/aggregator"
	"github.com/orderflow/backbone/gateway/cache"
	"github.com/orderflow/backbone/gateway/compression"
	"github.com/orderflow/backbone/gateway/middleware"
	"github.com/orderflow/backbone/gateway/proxy"
	"github.com/orderflow/backbone/gateway/ratelimit"
)

// newRouter assembles the gateway's fixed request pipeline: correlation,
// logging, JWT validation, bearer re-check, rate limiting, caching,
// compression, then routing to a backend cluster or the order summary
// aggregator.
func newRouter(
	cfg config.GatewayConfig,
	logger *slog.Logger,
	limiters *ratelimit.Set,
	respCache *cache.Cache,
	px *proxy.Proxy,
	agg *aggregator.Aggregator,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Healthy"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/orders/{orderID}/summary", summaryHandler(agg))
	mux.Handle("/", px.Handler())

	var handler http.Handler = mux
	handler = compression.Middleware(cfg.Compression)(handler)
	handler = respCache.Middleware()(handler)
	handler = limiters.Middleware()(handler)
	handler = middleware.BearerRecheck()(handler)
	handler = middleware.JWTValidate(cfg.Jwt, logger)(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = correlation.Middleware(handler)
	handler = corsMiddleware(handler)

	return handler
}

func summaryHandler(agg *aggregator.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := r.PathValue("orderID")
		summary, err := agg.Summarize(r.Context(), orderID, r.Header.Get("Authorization"))
		if err != nil {
			writeAppErr(w, apperr.NotFound("order not found"))
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
