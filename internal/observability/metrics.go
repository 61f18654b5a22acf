package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	redemptions  *prometheus.CounterVec
	casConflicts prometheus.Counter
	latency      *prometheus.HistogramVec
}

// NewMetrics registers the service collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Handled errors by path, method and error code.",
		}, []string{"path", "method", "code"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_redemptions_total",
			Help: "Redemption attempts by outcome.",
		}, []string{"outcome"}),
		casConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_cas_conflicts_total",
			Help: "Conditional-write collisions observed while incrementing usage state.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
	}
	registry.MustRegister(m.requests, m.errors, m.redemptions, m.casConflicts, m.latency)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordRedemption tracks a redemption outcome (granted, expired,
// limit_reached, conflict, not_found).
func (m *Metrics) RecordRedemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

// RecordCASConflict counts a lost conditional write.
func (m *Metrics) RecordCASConflict() {
	if m == nil {
		return
	}
	m.casConflicts.Inc()
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
