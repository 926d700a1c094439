// Package observability exposes Prometheus metrics for the HTTP surface,
// authorization decisions, and the dual-backend store.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisionsTotal  *prometheus.CounterVec
	fallbackReads   *prometheus.CounterVec
	migrations      *prometheus.CounterVec
	defaultsTotal   *prometheus.CounterVec
}

// NewMetrics initializes the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warden_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_authorize_decisions_total",
		Help: "Authorization decisions by outcome.",
	}, []string{"decision"})
	fallbackReads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_store_fallback_reads_total",
		Help: "Reads served from the fallback backend, by model.",
	}, []string{"model"})
	migrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_store_migrations_total",
		Help: "Read-through migrations into the primary backend, by model and result.",
	}, []string{"model", "result"})
	defaults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_store_defaults_synthesized_total",
		Help: "Default records synthesized for tenants missing from both backends.",
	}, []string{"model"})
	registry.MustRegister(requests, duration, decisions, fallbackReads, migrations, defaults)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		decisionsTotal:  decisions,
		fallbackReads:   fallbackReads,
		migrations:      migrations,
		defaultsTotal:   defaults,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counts and latencies per chi route pattern.
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

// Decision records one authorization outcome.
func (m *Metrics) Decision(allowed bool) {
	if m == nil {
		return
	}
	label := "denied"
	if allowed {
		label = "allowed"
	}
	m.decisionsTotal.WithLabelValues(label).Inc()
}

// FallbackRead implements the store metrics hook.
func (m *Metrics) FallbackRead(model string) {
	if m == nil {
		return
	}
	m.fallbackReads.WithLabelValues(model).Inc()
}

// Migration implements the store metrics hook.
func (m *Metrics) Migration(model string, ok bool) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	m.migrations.WithLabelValues(model, result).Inc()
}

// DefaultSynthesized implements the store metrics hook.
func (m *Metrics) DefaultSynthesized(model string) {
	if m == nil {
		return
	}
	m.defaultsTotal.WithLabelValues(model).Inc()
}

// Registerer exposes the registry for custom metric registration.
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
