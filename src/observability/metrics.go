package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	syncPages       prometheus.Counter
	degradedFetches *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "horizon_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_external_errors_total",
				Help: "Failed calls to external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_cache_hits_total",
				Help: "Cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_cache_misses_total",
				Help: "Cache misses.",
			},
			[]string{"cache"},
		),
		syncPages: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "horizon_sync_pages_total",
				Help: "Pages read from the aggregator sync feed.",
			},
		),
		degradedFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_degraded_fetches_total",
				Help: "Upstream reads replaced by an empty result.",
			},
			[]string{"source"},
		),
	}
}

func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) IncrSyncPage() {
	m.syncPages.Inc()
}

func (m *Metrics) IncrDegradedFetch(source string) {
	m.degradedFetches.WithLabelValues(source).Inc()
}
