package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the job outcome collectors shared by every worker of a pool.
type Metrics struct {
	Claimed      prometheus.Counter
	Completed    prometheus.Counter
	Failed       prometheus.Counter
	Retried      prometheus.Counter
	DeadLettered prometheus.Counter
	Duration     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Claimed: f.NewCounter(prometheus.CounterOpts{
			Name: "queuectl_jobs_claimed_total",
			Help: "Jobs claimed by workers.",
		}),
		Completed: f.NewCounter(prometheus.CounterOpts{
			Name: "queuectl_jobs_completed_total",
			Help: "Jobs whose command exited with status 0.",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "queuectl_jobs_failed_total",
			Help: "Failed job executions, retried or not.",
		}),
		Retried: f.NewCounter(prometheus.CounterOpts{
			Name: "queuectl_jobs_retried_total",
			Help: "Failed jobs returned to PENDING for another attempt.",
		}),
		DeadLettered: f.NewCounter(prometheus.CounterOpts{
			Name: "queuectl_jobs_dead_lettered_total",
			Help: "Jobs moved to the dead letter queue.",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "queuectl_job_duration_seconds",
			Help:    "Wall time of job command executions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
}
