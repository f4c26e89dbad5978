package schedule

import "github.com/prometheus/client_golang/prometheus"

const (
	statusSuccess = "success"
	statusFailed  = "failed"
	statusSkipped = "skipped"
)

var (
	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_job_runs_total",
			Help: "Maintenance job runs by outcome",
		},
		[]string{"job", "status"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engagement_job_duration_seconds",
			Help:    "Duration of maintenance job runs",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"job"},
	)
)

// RegisterMetrics registers the job metrics. Call this from main.go
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(jobRuns, jobDuration)
}
