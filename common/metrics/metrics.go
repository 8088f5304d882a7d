// Package metrics builds the Prometheus collectors shared by both binaries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics covers the gateway's HTTP edge.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics builds HTTP metrics namespaced by serviceName.
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordHTTPRequest records one HTTP request's outcome.
func (m *HTTPMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SagaMetrics covers the orchestrator's terminal-state bookkeeping.
type SagaMetrics struct {
	Confirmed        prometheus.Counter
	Cancelled        prometheus.Counter
	DroppedDuplicate prometheus.Counter
	EventsPublished  *prometheus.CounterVec
}

// NewSagaMetrics builds saga-lifecycle metrics namespaced by serviceName.
func NewSagaMetrics(serviceName string) *SagaMetrics {
	return &SagaMetrics{
		Confirmed: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_sagas_confirmed_total",
			Help: "Total number of sagas that reached Confirmed",
		}),
		Cancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_sagas_cancelled_total",
			Help: "Total number of sagas that reached Cancelled",
		}),
		DroppedDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_sagas_dropped_duplicate_total",
			Help: "Total number of terminal events dropped for an unknown or already-consumed orderId",
		}),
		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_events_published_total",
				Help: "Total number of events published by routing key",
			},
			[]string{"routing_key"},
		),
	}
}

// RateLimitMetrics covers gateway admission decisions.
type RateLimitMetrics struct {
	Admitted *prometheus.CounterVec
	Rejected *prometheus.CounterVec
}

// NewRateLimitMetrics builds rate-limit metrics namespaced by serviceName.
func NewRateLimitMetrics(serviceName string) *RateLimitMetrics {
	return &RateLimitMetrics{
		Admitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_ratelimit_admitted_total",
				Help: "Total number of requests admitted by the rate limiter",
			},
			[]string{"policy"},
		),
		Rejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_ratelimit_rejected_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"policy"},
		),
	}
}

// CacheMetrics covers the gateway response cache.
type CacheMetrics struct {
	Hits   prometheus.Counter
	Misses prometheus.Counter
	Errors prometheus.Counter
}

// NewCacheMetrics builds response-cache metrics namespaced by serviceName.
func NewCacheMetrics(serviceName string) *CacheMetrics {
	return &CacheMetrics{
		Hits:   promauto.NewCounter(prometheus.CounterOpts{Name: serviceName + "_cache_hits_total", Help: "Total response cache hits"}),
		Misses: promauto.NewCounter(prometheus.CounterOpts{Name: serviceName + "_cache_misses_total", Help: "Total response cache misses"}),
		Errors: promauto.NewCounter(prometheus.CounterOpts{Name: serviceName + "_cache_errors_total", Help: "Total response cache errors (bypassed, never failed the request)"}),
	}
}
