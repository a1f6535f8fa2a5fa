package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks the layered blacklist cache.
type CacheMetrics struct {
	Hits          *prometheus.CounterVec
	Misses        *prometheus.CounterVec
	Invalidations prometheus.Counter
	Entries       prometheus.Gauge
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blacklist_cache",
			Name:      "hits_total",
			Help:      "Total number of blacklist cache hits, by layer.",
		}, []string{"layer"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blacklist_cache",
			Name:      "misses_total",
			Help:      "Total number of blacklist cache misses, by layer.",
		}, []string{"layer"}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blacklist_cache",
			Name:      "invalidations_total",
			Help:      "Total number of blacklist cache invalidations.",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "blacklist_cache",
			Name:      "active_entries",
			Help:      "Number of active blacklist entries in the last loaded view.",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Invalidations, m.Entries)
	return m
}
