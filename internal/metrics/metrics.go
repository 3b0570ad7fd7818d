// Package metrics provides Prometheus metrics for entity resolution and upstream calls.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eflow"

// Metrics groups the collectors used across the service. A nil *Metrics is valid
// and records nothing, so components can be built without a registry in tests.
type Metrics struct {
	// Resolutions tracks resolver outcomes by entity kind and rung (or "not_found").
	Resolutions *prometheus.CounterVec
	// CacheLookups tracks entity cache hits and misses.
	CacheLookups *prometheus.CounterVec
	// PagesFetched tracks upstream pages consumed by the paginated fetcher.
	PagesFetched *prometheus.CounterVec
	// FetchFailures tracks aborted collection fetches.
	FetchFailures *prometheus.CounterVec
	// RequestDuration tracks upstream HTTP request duration.
	RequestDuration *prometheus.HistogramVec
	// ValidationFailures tracks outbound requests rejected or flagged by the validator.
	ValidationFailures *prometheus.CounterVec
}

// New registers all collectors on reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "resolutions_total",
				Help:      "Total number of entity resolutions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "cache_lookups_total",
				Help:      "Total number of entity cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		PagesFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetcher",
				Name:      "pages_total",
				Help:      "Total number of upstream pages fetched by resource",
			},
			[]string{"resource"},
		),
		FetchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetcher",
				Name:      "failures_total",
				Help:      "Total number of aborted collection fetches by resource",
			},
			[]string{"resource"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http_client",
				Name:      "request_duration_seconds",
				Help:      "Duration of upstream HTTP requests in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path", "status_code"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "validator",
				Name:      "failures_total",
				Help:      "Total number of outbound requests failing validation by path and policy",
			},
			[]string{"path", "policy"},
		),
	}
}

func (m *Metrics) ObserveResolution(kind, outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveCache(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObservePage(resource string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(resource).Inc()
}

func (m *Metrics) ObserveFetchFailure(resource string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(resource).Inc()
}

// ObserveRequest records an upstream call. status 0 means no response was received.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveValidationFailure(path, policy string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(path, policy).Inc()
}
