package ratelimit

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/orderflow/backbone/common/apperr"
	"github.com/orderflow/backbone/common/config"
	"github.com/orderflow/backbone/gateway/middleware"
)

// Set holds the four policy-selected limiters the gateway pipeline chooses
// between: ProductApi and OrderApi are fixed-window, PaymentApi is
// concurrency, everything else falls to Default.
type Set struct {
	enabled bool
	product Limiter
	order   Limiter
	payment Limiter
	def     Limiter
}

// NewSet builds a Set from spec.md §6's RateLimiting config block.
func NewSet(cfg config.RateLimiting) *Set {
	return &Set{
		enabled: cfg.IsEnabled,
		product: fixedWindowFrom(cfg.ProductAPIPolicy),
		order:   fixedWindowFrom(cfg.OrderAPIPolicy),
		payment: concurrencyFrom(cfg.PaymentAPIPolicy),
		def:     fixedWindowFrom(cfg.DefaultPolicy),
	}
}

func parseQueueOrder(s string) QueueOrder {
	if strings.EqualFold(s, "NewestFirst") {
		return NewestFirst
	}
	return OldestFirst
}

func fixedWindowFrom(p config.RateLimitPolicy) Limiter {
	return NewFixedWindow(FixedWindowPolicy{
		PermitLimit: p.PermitLimit,
		Window:      time.Duration(p.WindowSeconds) * time.Second,
		QueueLimit:  p.QueueLimit,
		QueueOrder:  parseQueueOrder(p.QueueProcessingOrder),
	})
}

func concurrencyFrom(p config.ConcurrencyPolicy) Limiter {
	return NewConcurrency(ConcurrencyPolicy{
		PermitLimit: p.PermitLimit,
		QueueLimit:  p.QueueLimit,
		QueueOrder:  parseQueueOrder(p.QueueProcessingOrder),
	})
}

// selectFor picks the limiter and a policy tag (used to namespace the
// identity key so distinct policies never share bucket state) for path.
func (s *Set) selectFor(path string) (Limiter, string) {
	switch {
	case strings.HasPrefix(path, "/api/products"), strings.HasPrefix(path, "/products"):
		return s.product, "product"
	case strings.HasPrefix(path, "/api/orders"), strings.HasPrefix(path, "/orders"):
		return s.order, "order"
	case strings.HasPrefix(path, "/api/payments"), strings.HasPrefix(path, "/payments"):
		return s.payment, "payment"
	default:
		return s.def, "default"
	}
}

// Middleware admits or rejects each request against the policy selected by
// its path, keyed by the caller's identity. Rejections never reach the
// cache, compression, or proxy stages.
func (s *Set) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.enabled {
				next.ServeHTTP(w, r)
				return
			}

			limiter, tag := s.selectFor(r.URL.Path)
			key := tag + "_" + middleware.RateLimitKey(r)

			lease, ok := limiter.Acquire(r.Context(), key)
			if !ok {
				writeRateLimited(w)
				return
			}
			defer lease.Release()

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter) {
	appErr := apperr.RateLimited()
	w.Header().Set("Retry-After", "60")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(appErr)
}
