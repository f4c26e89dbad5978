package services

import "github.com/prometheus/client_golang/prometheus"

var (
	progressRowsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_progress_rows_deleted_total",
			Help: "Total number of daily progress rows removed by the reset job",
		},
	)
	streaksReset = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_streaks_reset_total",
			Help: "Total number of streaks broken by streak maintenance",
		},
	)
	leaderboardCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_leaderboard_cache_lookups_total",
			Help: "Leaderboard cache lookups by result",
		},
		[]string{"result"},
	)
)

// RegisterMetrics registers the engagement counters. Call this from main.go
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(progressRowsDeleted, streaksReset, leaderboardCacheLookups)
}
