package metrics

import "github.com/prometheus/client_golang/prometheus"

// PresenceMetrics tracks the watcher registry.
type PresenceMetrics struct {
	Watchers             *prometheus.GaugeVec
	Events               *prometheus.CounterVec
	IdentityLookupErrors prometheus.Counter
}

func NewPresenceMetrics(reg prometheus.Registerer) *PresenceMetrics {
	m := &PresenceMetrics{
		Watchers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "watchers",
			Help:      "Watchers currently tracked, by channel.",
		}, []string{"channel"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "events_total",
			Help:      "Presence events handled, by event.",
		}, []string{"event"}),
		IdentityLookupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "identity_lookup_errors_total",
			Help:      "Identity lookups that failed and left a watcher unresolved.",
		}),
	}

	reg.MustRegister(m.Watchers, m.Events, m.IdentityLookupErrors)
	return m
}
