// Package metrics holds all Prometheus metrics for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the counters and histograms the core records. Services
// accept a nil *Metrics so tests can run without touching the default
// registry.
type Metrics struct {
	WritesTotal          *prometheus.CounterVec
	WriteDuration        prometheus.Histogram
	ReadsTotal           *prometheus.CounterVec
	ReadDuration         prometheus.Histogram
	CacheHits            prometheus.Counter
	CacheMisses          prometheus.Counter
	StoreRetries         prometheus.Counter
	IdempotencyDuplicates prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		WritesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recordstore_writes_total",
			Help: "Write requests by terminal status",
		}, []string{"status"}),
		WriteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recordstore_write_duration_seconds",
			Help:    "End-to-end write latency",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}),
		ReadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recordstore_reads_total",
			Help: "Read requests by outcome",
		}, []string{"outcome"}),
		ReadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recordstore_read_duration_seconds",
			Help:    "End-to-end read latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recordstore_cache_hits_total",
			Help: "Read cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recordstore_cache_misses_total",
			Help: "Read cache misses",
		}),
		StoreRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recordstore_store_retries_total",
			Help: "Store client attempts beyond the first",
		}),
		IdempotencyDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recordstore_idempotency_duplicates_total",
			Help: "Writes collapsed by the idempotency tracker",
		}),
	}
}

// ObserveWrite records a completed write.
func (m *Metrics) ObserveWrite(status string, seconds float64) {
	if m == nil {
		return
	}
	m.WritesTotal.WithLabelValues(status).Inc()
	m.WriteDuration.Observe(seconds)
}

// ObserveRead records a completed read.
func (m *Metrics) ObserveRead(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ReadsTotal.WithLabelValues(outcome).Inc()
	m.ReadDuration.Observe(seconds)
}

// IncCacheHit increments the cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

// IncCacheMiss increments the cache miss counter.
func (m *Metrics) IncCacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

// IncStoreRetry increments the store retry counter.
func (m *Metrics) IncStoreRetry() {
	if m != nil {
		m.StoreRetries.Inc()
	}
}

// IncDuplicate increments the collapsed-duplicate counter.
func (m *Metrics) IncDuplicate() {
	if m != nil {
		m.IdempotencyDuplicates.Inc()
	}
}
