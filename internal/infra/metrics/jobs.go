package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(turnJobsProcessedTotal, turnJobDurationSeconds, turnJobsReapedTotal) }

var turnJobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "turn_jobs_processed_total",
		Help: "Total number of turn jobs processed, labeled by terminal status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var turnJobDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "turn_job_duration_seconds",
		Help:    "Wall time from claim to terminal status.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	},
	[]string{"status"},
)

var turnJobsReapedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "turn_jobs_reaped_total",
		Help: "Jobs forced to failed by the stale-job reaper.",
	},
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncTurnJob(status string) {
	turnJobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveTurnJobDuration(status string, seconds float64) {
	turnJobDurationSeconds.WithLabelValues(norm(status)).Observe(seconds)
}

func AddReapedJobs(n int) {
	turnJobsReapedTotal.Add(float64(n))
}
