package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for discovery and review enrichment.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	RefsDiscoveredTotal *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
	ReviewLookupsTotal  *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"source", "outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	refsDiscovered := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_refs_discovered_total",
			Help: "Total number of unique product refs discovered.",
		},
		[]string{"strategy"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	reviewLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_review_lookups_total",
			Help: "Review lookups by outcome (ok, fallback, cached).",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, requestDuration, refsDiscovered, errorsTotal, reviewLookups)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		RefsDiscoveredTotal: refsDiscovered,
		ErrorsTotal:         errorsTotal,
		ReviewLookupsTotal:  reviewLookups,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(source, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRefs increments the discovered refs counter for a strategy.
func (m *Metrics) IncRefs(strategy string) {
	if m == nil {
		return
	}
	m.RefsDiscoveredTotal.WithLabelValues(strategy).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncReviewLookup increments the review lookup counter for an outcome.
func (m *Metrics) IncReviewLookup(outcome string) {
	if m == nil {
		return
	}
	m.ReviewLookupsTotal.WithLabelValues(outcome).Inc()
}
