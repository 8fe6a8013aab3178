package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamops",
			Name:      "runs_total",
			Help:      "Total number of remediation runs, partitioned by incident category and final state.",
		},
		[]string{"category", "state"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dreamops",
			Name:      "run_seconds",
			Help:      "End-to-end remediation run latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamops",
			Name:      "actions_total",
			Help:      "Total number of remediation actions, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	actionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dreamops",
			Name:      "action_seconds",
			Help:      "Per-action execution latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	approvalWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dreamops",
			Name:      "approval_wait_seconds",
			Help:      "Time spent waiting on human approval, partitioned by decision.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"decision"},
	)

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamops",
			Name:      "verifications_total",
			Help:      "Total number of verification checks, partitioned by status.",
		},
		[]string{"status"},
	)

	lifecycleFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dreamops",
			Name:      "lifecycle_failures_total",
			Help:      "Total number of failed alerting lifecycle calls (resolve, note, escalate).",
		},
	)
)

// Register attaches dreamops collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		actionsTotal,
		actionDurationSeconds,
		approvalWaitSeconds,
		verificationsTotal,
		lifecycleFailuresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a completed run's duration, category and final state.
func ObserveRun(duration time.Duration, category, state string) {
	runsTotal.WithLabelValues(category, state).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveAction records a single action attempt.
func ObserveAction(duration time.Duration, kind, outcome string) {
	actionsTotal.WithLabelValues(kind, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	actionDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveApprovalWait records how long an action sat in the approval queue.
func ObserveApprovalWait(duration time.Duration, decision string) {
	if duration < 0 {
		duration = 0
	}
	approvalWaitSeconds.WithLabelValues(decision).Observe(duration.Seconds())
}

// ObserveVerification records the status of one verification check.
func ObserveVerification(status string) {
	verificationsTotal.WithLabelValues(status).Inc()
}

// IncLifecycleFailure counts a failed call to the alerting system.
func IncLifecycleFailure() {
	lifecycleFailuresTotal.Inc()
}
