package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chisel_jobs_started_total",
		Help: "Jobs picked up by this worker.",
	}, []string{"queue"})

	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chisel_jobs_completed_total",
		Help: "Jobs finished successfully.",
	}, []string{"queue"})

	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chisel_jobs_failed_total",
		Help: "Jobs that ended in failure, including cancellations.",
	}, []string{"queue"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chisel_job_duration_seconds",
		Help:    "Wall-clock processing time of completed jobs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"queue"})
)
