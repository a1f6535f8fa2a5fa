package metrics

import "github.com/prometheus/client_golang/prometheus"

// ModerationMetrics tracks message evaluation outcomes.
type ModerationMetrics struct {
	Decisions          *prometheus.CounterVec
	EvaluationErrors   *prometheus.CounterVec
	EnforcementErrors  *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
}

func NewModerationMetrics(reg prometheus.Registerer) *ModerationMetrics {
	m := &ModerationMetrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "decisions_total",
			Help:      "Messages evaluated, by outcome (allowed, exempt, warn, timeout).",
		}, []string{"outcome"}),
		EvaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "evaluation_errors_total",
			Help:      "Evaluations that failed, by reason.",
		}, []string{"reason"}),
		EnforcementErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "enforcement_errors_total",
			Help:      "Chat control calls that failed, by action.",
		}, []string{"action"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating one message, including the warning bump.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
	}

	reg.MustRegister(m.Decisions, m.EvaluationErrors, m.EnforcementErrors, m.EvaluationDuration)
	return m
}
