package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SearchMetrics observes chunk dispatch. It satisfies ports.SearchObserver.
type SearchMetrics struct {
	cacheLookups    *prometheus.CounterVec
	backendCalls    *prometheus.CounterVec
	backendDuration prometheus.Histogram
	backendInFlight prometheus.Gauge
}

func NewSearchMetrics(service string, reg prometheus.Registerer) *SearchMetrics {
	labels := prometheus.Labels{"service": service}

	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "cache_lookups_total",
			Help:        "Response cache lookups by result.",
			ConstLabels: labels,
		},
		[]string{"result"},
	)
	backendCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "backend_calls_total",
			Help:        "Per-chunk completion calls by status.",
			ConstLabels: labels,
		},
		[]string{"status"},
	)
	backendDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "backend_call_duration_seconds",
			Help:        "Per-chunk completion latency.",
			Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
			ConstLabels: labels,
		},
	)
	backendInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "backend_calls_in_flight",
			Help:        "Completion calls currently holding a concurrency slot.",
			ConstLabels: labels,
		},
	)

	reg.MustRegister(cacheLookups, backendCalls, backendDuration, backendInFlight)

	return &SearchMetrics{
		cacheLookups:    cacheLookups,
		backendCalls:    backendCalls,
		backendDuration: backendDuration,
		backendInFlight: backendInFlight,
	}
}

func (m *SearchMetrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *SearchMetrics) BackendCallStarted() {
	m.backendInFlight.Inc()
}

func (m *SearchMetrics) BackendCallFinished(duration time.Duration, err error) {
	m.backendInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.backendCalls.WithLabelValues(status).Inc()
	m.backendDuration.Observe(duration.Seconds())
}
