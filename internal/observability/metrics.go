package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	journalPosted  prometheus.Counter
	journalVoided  prometheus.Counter
	stockMovements *prometheus.CounterVec
	integrityFails prometheus.Counter
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	journalPosted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_journal_entries_posted_total",
		Help: "Journal entries transitioned to POSTED.",
	})
	journalVoided := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_journal_entries_voided_total",
		Help: "Journal entries transitioned to VOID.",
	})
	stockMovements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_stock_movements_total",
		Help: "Stock ledger entries recorded by movement type.",
	}, []string{"type"})
	integrityFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_integrity_violations_total",
		Help: "Integrity scan findings that require operator attention.",
	})
	registry.MustRegister(requests, duration, journalPosted, journalVoided, stockMovements, integrityFails)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		journalPosted:   journalPosted,
		journalVoided:   journalVoided,
		stockMovements:  stockMovements,
		integrityFails:  integrityFails,
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

// Middleware records metrics for every HTTP request.
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

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// JournalPosted counts one posted journal entry.
func (m *Metrics) JournalPosted() {
	if m != nil {
		m.journalPosted.Inc()
	}
}

// JournalVoided counts one voided journal entry.
func (m *Metrics) JournalVoided() {
	if m != nil {
		m.journalVoided.Inc()
	}
}

// StockMovement counts one stock ledger entry by movement type.
func (m *Metrics) StockMovement(movementType string) {
	if m != nil {
		m.stockMovements.WithLabelValues(movementType).Inc()
	}
}

// IntegrityViolation counts one integrity scan finding.
func (m *Metrics) IntegrityViolation() {
	if m != nil {
		m.integrityFails.Inc()
	}
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
