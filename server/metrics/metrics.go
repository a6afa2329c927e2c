// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus metrics for the server.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
	RateLimitHits   *prometheus.CounterVec

	// CompletionsTotal counts completion calls by operation (score, tips)
	// and outcome (success, failure).
	CompletionsTotal   *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec

	// ValidationFailures counts submissions rejected before any network
	// call, by kind (empty_essay, empty_topic, too_short, busy).
	ValidationFailures *prometheus.CounterVec

	// TopicImports counts topic file uploads by outcome (accepted, rejected).
	TopicImports *prometheus.CounterVec

	ActiveSessions prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with a custom registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumiverse_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lumiverse_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lumiverse_http_active_requests",
				Help: "Number of currently active HTTP requests",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumiverse_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumiverse_rate_limit_hits_total",
				Help: "Total number of rate limit hits by client",
			},
			[]string{"client"},
		),
		CompletionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumiverse_completions_total",
				Help: "Total number of completion calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		CompletionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lumiverse_completion_duration_seconds",
				Help:    "Duration of completion calls in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"operation"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumiverse_validation_failures_total",
				Help: "Submissions rejected before reaching the completion endpoint",
			},
			[]string{"kind"},
		),
		TopicImports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumiverse_topic_imports_total",
				Help: "Topic file imports by outcome",
			},
			[]string{"outcome"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lumiverse_active_sessions",
				Help: "Number of live form sessions",
			},
		),
	}

	// Register default Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize some default metrics
	m.RequestsTotal.WithLabelValues("/health", "200").Add(0)
	m.RequestsTotal.WithLabelValues("/metrics", "200").Add(0)
	for _, op := range []string{"score", "tips"} {
		m.CompletionsTotal.WithLabelValues(op, "success").Add(0)
		m.CompletionsTotal.WithLabelValues(op, "failure").Add(0)
	}
	m.TopicImports.WithLabelValues("accepted").Add(0)
	m.TopicImports.WithLabelValues("rejected").Add(0)

	return m
}

// Registry exposes the registry so other components (the circuit breaker)
// can register their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	})
}
