package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/botrunner/internal/model"
)

// Dispatch outcome label values.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botrunner_jobs_total",
			Help: "Total number of jobs finished, by blueprint and final status.",
		},
		[]string{"blueprint", "status"},
	)

	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "botrunner_jobs_active",
			Help: "Number of jobs currently executing.",
		},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botrunner_dispatch_duration_seconds",
			Help:    "Time from task dispatch to result, in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"task_type"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botrunner_dispatch_total",
			Help: "Total number of task dispatches, by task type and outcome.",
		},
		[]string{"task_type", "outcome"},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "botrunner_events_dropped_total",
			Help: "Job events not delivered to a live stream because its buffer was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(activeJobs)
	prometheus.MustRegister(dispatchDuration)
	prometheus.MustRegister(dispatchTotal)
	prometheus.MustRegister(eventsDropped)
}

// initJobMetrics pre-initializes the per-blueprint label combinations so they
// appear in /metrics with value 0 before the first job finishes.
func initJobMetrics(blueprint string) {
	jobsTotal.WithLabelValues(blueprint, model.StatusCompleted)
	jobsTotal.WithLabelValues(blueprint, model.StatusFailed)
}
