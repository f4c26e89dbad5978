package schedule

import (
	"context"
	"fmt"

	"mindagrowAPI/config"
	"mindagrowAPI/services"
)

const (
	JobResetMissions     = "reset-missions"
	JobWeeklyLeaderboard = "weekly-leaderboard"
	JobStreakMaintenance = "streak-maintenance"
)

// Maintainer is the set of maintenance operations the scheduler drives.
type Maintainer interface {
	ResetDailyMissions(ctx context.Context) (*services.ResetResult, error)
	UpdateWeeklyLeaderboard(ctx context.Context) (*services.RollupResult, error)
	UpdateAllUserStreaks(ctx context.Context) (*services.StreakResult, error)
}

// RegisterMaintenanceJobs wires the three recurring engagement jobs with cadences from cfg.
func RegisterMaintenanceJobs(s *Scheduler, m Maintainer, cfg config.Config) error {
	resetAt, err := DailyAt(cfg.ResetMissionsAt)
	if err != nil {
		return fmt.Errorf("invalid reset time: %w", err)
	}
	streaksAt, err := DailyAt(cfg.StreakMaintenanceAt)
	if err != nil {
		return fmt.Errorf("invalid streak maintenance time: %w", err)
	}
	if cfg.LeaderboardInterval <= 0 {
		return fmt.Errorf("invalid leaderboard interval %s", cfg.LeaderboardInterval)
	}

	jobs := []Job{
		{
			Name:    JobResetMissions,
			Cadence: resetAt,
			Run: func(ctx context.Context) (any, error) {
				res, err := m.ResetDailyMissions(ctx)
				return result(res, err)
			},
		},
		{
			Name:    JobWeeklyLeaderboard,
			Cadence: Every(cfg.LeaderboardInterval),
			Run: func(ctx context.Context) (any, error) {
				res, err := m.UpdateWeeklyLeaderboard(ctx)
				return result(res, err)
			},
		},
		{
			Name:    JobStreakMaintenance,
			Cadence: streaksAt,
			Run: func(ctx context.Context) (any, error) {
				res, err := m.UpdateAllUserStreaks(ctx)
				return result(res, err)
			},
		},
	}

	for _, job := range jobs {
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}

// result keeps a nil operation result untyped so a failed run reports no result.
func result[T any](res *T, err error) (any, error) {
	if res == nil {
		return nil, err
	}
	return res, err
}
