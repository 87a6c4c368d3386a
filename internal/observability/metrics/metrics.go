// Package metrics exposes the scheduler's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the engine reports to. Construct one per
// process and share it; collectors are safe for concurrent use.
type Metrics struct {
	PollCycles     prometheus.Counter
	PollErrors     prometheus.Counter
	DueTasks       prometheus.Histogram
	TasksStarted   prometheus.Counter
	TasksSkipped   prometheus.Counter
	TasksSucceeded prometheus.Counter
	TasksFailed    prometheus.Counter
	Attempts       prometheus.Counter
	InFlight       prometheus.Gauge
	RunDuration    prometheus.Histogram
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer
// for the process-wide registry, or a private one in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PollCycles: f.NewCounter(prometheus.CounterOpts{
			Name: "agentsched_poll_cycles_total",
			Help: "Poll loop iterations.",
		}),
		PollErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "agentsched_poll_errors_total",
			Help: "Poll loop iterations that ended in an error.",
		}),
		DueTasks: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentsched_due_tasks_per_cycle",
			Help:    "Number of due tasks discovered per poll cycle.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		TasksStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "agentsched_tasks_started_total",
			Help: "Tasks claimed for execution.",
		}),
		TasksSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "agentsched_tasks_skipped_total",
			Help: "Tasks skipped because another cycle already claimed them.",
		}),
		TasksSucceeded: f.NewCounter(prometheus.CounterOpts{
			Name: "agentsched_tasks_succeeded_total",
			Help: "Tasks whose final status was Completed.",
		}),
		TasksFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "agentsched_tasks_failed_total",
			Help: "Tasks whose final status was Failed.",
		}),
		Attempts: f.NewCounter(prometheus.CounterOpts{
			Name: "agentsched_execution_attempts_total",
			Help: "Handler invocations, including retries.",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentsched_tasks_in_flight",
			Help: "Tasks currently executing.",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentsched_task_run_seconds",
			Help:    "Wall-clock duration of a task's attempt cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
