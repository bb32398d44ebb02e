package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tiercache"

// CacheMetrics exposes the engine's counters to Prometheus. All methods are
// nil-safe so the engine can run without metrics wired up.
type CacheMetrics struct {
	registry *prometheus.Registry

	hitsTotal          *prometheus.CounterVec
	missesTotal        *prometheus.CounterVec
	setsTotal          *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec
	warmedTotal        prometheus.Counter
	sweepDeletedTotal  prometheus.Counter
}

// NewCacheMetrics creates the metric vectors on a private registry.
func NewCacheMetrics() *CacheMetrics {
	registry := prometheus.NewRegistry()

	m := &CacheMetrics{
		registry: registry,
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"tier", "cache_type"},
		),
		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "misses_total",
				Help:      "Total number of cache misses across all tiers",
			},
			[]string{"cache_type"},
		),
		setsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sets_total",
				Help:      "Total number of cache writes per tier",
			},
			[]string{"tier"},
		),
		invalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalidations_total",
				Help:      "Total number of entries removed by invalidation",
			},
			[]string{"tier"},
		),
		warmedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warmed_entries_total",
				Help:      "Total number of entries promoted by the warming worker",
			},
		),
		sweepDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_deleted_total",
				Help:      "Total number of expired durable rows removed by the sweep",
			},
		),
	}

	registry.MustRegister(
		m.hitsTotal,
		m.missesTotal,
		m.setsTotal,
		m.invalidationsTotal,
		m.warmedTotal,
		m.sweepDeletedTotal,
	)
	return m
}

// RegisterL1 wires the L1 store's internal counters into the registry as
// callback collectors, so eviction and expiry totals need no push path.
func (m *CacheMetrics) RegisterL1(size func() float64, evictions func() float64, expired func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "l1_entries",
			Help:      "Current number of entries in the in-process tier",
		}, size),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "l1_evictions_total",
			Help:      "Total number of L1 entries evicted for capacity",
		}, evictions),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "l1_expired_total",
			Help:      "Total number of L1 entries removed lazily after TTL expiry",
		}, expired),
	)
}

func (m *CacheMetrics) RecordHit(tier string, cacheType string) {
	if m == nil {
		return
	}
	m.hitsTotal.WithLabelValues(tier, cacheType).Inc()
}

func (m *CacheMetrics) RecordMiss(cacheType string) {
	if m == nil {
		return
	}
	m.missesTotal.WithLabelValues(cacheType).Inc()
}

func (m *CacheMetrics) RecordSet(tier string) {
	if m == nil {
		return
	}
	m.setsTotal.WithLabelValues(tier).Inc()
}

func (m *CacheMetrics) RecordInvalidations(tier string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invalidationsTotal.WithLabelValues(tier).Add(float64(count))
}

func (m *CacheMetrics) RecordWarmed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.warmedTotal.Add(float64(count))
}

func (m *CacheMetrics) RecordSweepDeleted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sweepDeletedTotal.Add(float64(count))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *CacheMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
