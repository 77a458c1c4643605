// Package observability exposes the Prometheus registry of the API process.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcomes used as label values.
const (
	OutcomeOK       = "ok"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Metrics collects HTTP, aggregate query and cache metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	queryDuration   *prometheus.HistogramVec
	queryTimeouts   *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

// NewMetrics builds a private registry with the base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmalytics_http_requests_total",
		Help: "HTTP requests by route pattern and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pharmalytics_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	queryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pharmalytics_query_duration_seconds",
		Help:    "Aggregate query latency by query and outcome.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 20},
	}, []string{"query", "outcome"})
	queryTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmalytics_query_timeouts_total",
		Help: "Aggregate queries abandoned after their time budget.",
	}, []string{"query"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmalytics_cache_lookups_total",
		Help: "Read cache lookups by cache and result.",
	}, []string{"cache", "result"})
	registry.MustRegister(requests, duration, queryDuration, queryTimeouts, cacheLookups)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		queryDuration:   queryDuration,
		queryTimeouts:   queryTimeouts,
		cacheLookups:    cacheLookups,
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency of every request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveQuery records one aggregate query execution.
func (m *Metrics) ObserveQuery(query, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(query, outcome).Observe(elapsed.Seconds())
	if outcome == OutcomeTimeout {
		m.queryTimeouts.WithLabelValues(query).Inc()
	}
}

// ObserveCache records a cache lookup; result is "hit" or "miss".
func (m *Metrics) ObserveCache(cache, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// Registerer exposes the registry for collectors owned by other packages.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
