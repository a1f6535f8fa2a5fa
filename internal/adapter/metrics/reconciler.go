package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconcilerMetrics tracks uptime flushes.
type ReconcilerMetrics struct {
	Ticks          *prometheus.CounterVec
	FlushDuration  prometheus.Histogram
	SecondsWritten prometheus.Counter
	WriteErrors    prometheus.Counter
	MessageErrors  prometheus.Counter
}

func NewReconcilerMetrics(reg prometheus.Registerer) *ReconcilerMetrics {
	m := &ReconcilerMetrics{
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uptime",
			Name:      "ticks_total",
			Help:      "Reconciliation ticks, by state (live, offline, standby, error).",
		}, []string{"state"}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "uptime",
			Name:      "flush_duration_seconds",
			Help:      "Duration of one uptime flush across all channels.",
			Buckets:   prometheus.DefBuckets,
		}),
		SecondsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uptime",
			Name:      "seconds_written_total",
			Help:      "Watch time credited to users.",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uptime",
			Name:      "write_errors_total",
			Help:      "Per-user watch time writes that failed.",
		}),
		MessageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uptime",
			Name:      "message_count_errors_total",
			Help:      "Message count increments that failed.",
		}),
	}

	reg.MustRegister(m.Ticks, m.FlushDuration, m.SecondsWritten, m.WriteErrors, m.MessageErrors)
	return m
}
