package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mindagrowAPI/internal/mission"
	"mindagrowAPI/internal/types/session"
	"mindagrowAPI/utils"
)

const (
	HighScoreThreshold     = 80
	WeakAreaThreshold      = 70.0
	FavoriteWindow         = 7 * 24 * time.Hour
	MasteryTargetScore     = 90
	MasteryXPReward        = 100
	ImprovementTargetPlays = 5
	ImprovementXPReward    = 75
)

// MissionGateway is the persistence surface of the maintenance operations.
type MissionGateway interface {
	DeleteProgressBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GenerateWeeklyLeaderboard(ctx context.Context) error
	CountCompletedSessions(ctx context.Context, userID int64, day time.Time, minScore int) (int, error)
	SetMissionProgress(ctx context.Context, userID int64, day time.Time, missionType mission.Type, count int) (int64, error)
	CheckMissionCompletion(ctx context.Context, userID int64) (int, error)
	FavoriteGameType(ctx context.Context, userID int64, since time.Time) (*session.TypeStat, error)
	WeakestGameType(ctx context.Context, userID int64, threshold float64) (*session.TypeStat, error)
	ListStudentIDs(ctx context.Context) ([]int64, error)
	HasActivityOn(ctx context.Context, userID int64, day time.Time) (bool, error)
	ResetStreak(ctx context.Context, userID int64, day time.Time) (bool, error)
}

type LeaderboardInvalidator interface {
	InvalidateLeaderboards(ctx context.Context) error
}

type ResetResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

type RollupResult struct {
	WeekStart        time.Time `json:"week_start"`
	CacheInvalidated bool      `json:"cache_invalidated"`
}

type AutoCompleteResult struct {
	UserID                   int64     `json:"user_id"`
	Date                     time.Time `json:"date"`
	GamesPlayed              int       `json:"games_played"`
	HighScores               int       `json:"high_scores"`
	GameMissionsUpdated      int64     `json:"game_missions_updated"`
	HighScoreMissionsUpdated int64     `json:"high_score_missions_updated"`
	MissionsCompleted        int       `json:"missions_completed"`
}

type UserFailure struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

type StreakResult struct {
	Date         time.Time     `json:"date"`
	UsersChecked int           `json:"users_checked"`
	ActiveToday  int           `json:"active_today"`
	StreaksReset int           `json:"streaks_reset"`
	Failed       []UserFailure `json:"failed,omitempty"`
}

type MissionService struct {
	gateway MissionGateway
	cache   LeaderboardInvalidator
	log     *zap.Logger
	now     func() time.Time
	retry   RetryPolicy
}

type MissionOption func(*MissionService)

func WithClock(now func() time.Time) MissionOption {
	return func(s *MissionService) { s.now = now }
}

func WithRetryPolicy(p RetryPolicy) MissionOption {
	return func(s *MissionService) { s.retry = p }
}

func WithLeaderboardInvalidator(c LeaderboardInvalidator) MissionOption {
	return func(s *MissionService) { s.cache = c }
}

func NewMissionService(gateway MissionGateway, log *zap.Logger, opts ...MissionOption) *MissionService {
	s := &MissionService{
		gateway: gateway,
		log:     log,
		now:     time.Now,
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResetDailyMissions deletes progress rows dated before yesterday.
func (s *MissionService) ResetDailyMissions(ctx context.Context) (*ResetResult, error) {
	cutoff := utils.Yesterday(s.now())
	log := s.log.With(zap.String("cutoff", utils.FormatDate(cutoff)))
	log.Info("Starting daily mission reset")

	deleted, err := withRetry(ctx, s.retry, log, "delete_daily_progress", func() (int64, error) {
		return s.gateway.DeleteProgressBefore(ctx, cutoff)
	})
	if err != nil {
		log.Error("Error resetting daily missions", zap.Error(err))
		return nil, fmt.Errorf("failed to reset daily missions: %w", err)
	}

	progressRowsDeleted.Add(float64(deleted))
	log.Info("Daily missions reset completed", zap.Int64("deleted", deleted))
	return &ResetResult{Cutoff: cutoff, Deleted: deleted}, nil
}

// UpdateWeeklyLeaderboard delegates the rollup to generate_weekly_leaderboard().
func (s *MissionService) UpdateWeeklyLeaderboard(ctx context.Context) (*RollupResult, error) {
	weekStart := utils.WeekStart(s.now())
	log := s.log.With(zap.String("week_start", utils.FormatDate(weekStart)))
	log.Info("Updating weekly leaderboard")

	_, err := withRetry(ctx, s.retry, log, "generate_weekly_leaderboard", func() (struct{}, error) {
		return struct{}{}, s.gateway.GenerateWeeklyLeaderboard(ctx)
	})
	if err != nil {
		log.Error("Error updating weekly leaderboard", zap.Error(err))
		return nil, fmt.Errorf("failed to update weekly leaderboard: %w", err)
	}

	result := &RollupResult{WeekStart: weekStart}
	if s.cache != nil {
		if err := s.cache.InvalidateLeaderboards(ctx); err != nil {
			log.Warn("Failed to invalidate leaderboard cache", zap.Error(err))
		} else {
			result.CacheInvalidated = true
		}
	}

	log.Info("Weekly leaderboard updated")
	return result, nil
}

// AutoCompleteMissions recomputes today's game and high_score counters from session
// history and lets check_mission_completion promote finished missions.
// Counters are overwritten, never incremented, so repeated calls converge.
func (s *MissionService) AutoCompleteMissions(ctx context.Context, userID int64) (*AutoCompleteResult, error) {
	today := utils.DateOf(s.now())
	log := s.log.With(zap.Int64("user_id", userID), zap.String("date", utils.FormatDate(today)))
	result := &AutoCompleteResult{UserID: userID, Date: today}

	fail := func(step string, err error) (*AutoCompleteResult, error) {
		log.Error("Error auto-completing missions", zap.String("step", step), zap.Error(err))
		return nil, fmt.Errorf("failed to auto-complete missions: %w", err)
	}

	gamesPlayed, err := withRetry(ctx, s.retry, log, "count_sessions", func() (int, error) {
		return s.gateway.CountCompletedSessions(ctx, userID, today, 0)
	})
	if err != nil {
		return fail("count_sessions", err)
	}
	result.GamesPlayed = gamesPlayed

	result.GameMissionsUpdated, err = withRetry(ctx, s.retry, log, "set_game_progress", func() (int64, error) {
		return s.gateway.SetMissionProgress(ctx, userID, today, mission.TypeGame, gamesPlayed)
	})
	if err != nil {
		return fail("set_game_progress", err)
	}

	highScores, err := withRetry(ctx, s.retry, log, "count_high_scores", func() (int, error) {
		return s.gateway.CountCompletedSessions(ctx, userID, today, HighScoreThreshold)
	})
	if err != nil {
		return fail("count_high_scores", err)
	}
	result.HighScores = highScores

	result.HighScoreMissionsUpdated, err = withRetry(ctx, s.retry, log, "set_high_score_progress", func() (int64, error) {
		return s.gateway.SetMissionProgress(ctx, userID, today, mission.TypeHighScore, highScores)
	})
	if err != nil {
		return fail("set_high_score_progress", err)
	}

	result.MissionsCompleted, err = withRetry(ctx, s.retry, log, "check_mission_completion", func() (int, error) {
		return s.gateway.CheckMissionCompletion(ctx, userID)
	})
	if err != nil {
		return fail("check_mission_completion", err)
	}

	log.Debug("Missions auto-completed",
		zap.Int("games_played", result.GamesPlayed),
		zap.Int("high_scores", result.HighScores),
		zap.Int("missions_completed", result.MissionsCompleted),
	)
	return result, nil
}

// GeneratePersonalizedMissions proposes at most two missions from recent play.
// On error it returns an empty slice, never a partial one.
func (s *MissionService) GeneratePersonalizedMissions(ctx context.Context, userID int64) ([]mission.Suggestion, error) {
	log := s.log.With(zap.Int64("user_id", userID))
	since := s.now().Add(-FavoriteWindow)

	favorite, err := withRetry(ctx, s.retry, log, "favorite_game_type", func() (*session.TypeStat, error) {
		return s.gateway.FavoriteGameType(ctx, userID, since)
	})
	if err != nil {
		log.Error("Error generating personalized missions", zap.Error(err))
		return []mission.Suggestion{}, fmt.Errorf("failed to analyse favorite game type: %w", err)
	}

	weakest, err := withRetry(ctx, s.retry, log, "weakest_game_type", func() (*session.TypeStat, error) {
		return s.gateway.WeakestGameType(ctx, userID, WeakAreaThreshold)
	})
	if err != nil {
		log.Error("Error generating personalized missions", zap.Error(err))
		return []mission.Suggestion{}, fmt.Errorf("failed to analyse weak game type: %w", err)
	}

	suggestions := make([]mission.Suggestion, 0, 2)
	if favorite != nil {
		suggestions = append(suggestions, masterySuggestion(favorite.Type))
	}
	if weakest != nil {
		suggestions = append(suggestions, improvementSuggestion(weakest.Type))
	}
	return suggestions, nil
}

func masterySuggestion(gameType string) mission.Suggestion {
	return mission.Suggestion{
		Title:       fmt.Sprintf("Master %s", utils.GameTypeLabel(gameType)),
		Description: fmt.Sprintf("Reach a score of %d+ in a %s game", MasteryTargetScore, utils.GameTypeLabel(gameType)),
		TargetType:  mission.TypeScoreInGame,
		TargetCount: 1,
		XPReward:    MasteryXPReward,
	}
}

func improvementSuggestion(gameType string) mission.Suggestion {
	return mission.Suggestion{
		Title:       fmt.Sprintf("Improve %s Skills", utils.GameTypeLabel(gameType)),
		Description: fmt.Sprintf("Play %s %d times to build your skill", utils.GameTypeLabel(gameType), ImprovementTargetPlays),
		TargetType:  mission.TypePlaySpecificGame,
		TargetCount: ImprovementTargetPlays,
		XPReward:    ImprovementXPReward,
	}
}

// UpdateAllUserStreaks breaks the streak of every student with no activity today.
// Each student is handled independently: a failure is recorded and the loop moves on.
func (s *MissionService) UpdateAllUserStreaks(ctx context.Context) (*StreakResult, error) {
	today := utils.DateOf(s.now())
	log := s.log.With(zap.String("date", utils.FormatDate(today)))
	log.Info("Updating all user streaks")

	ids, err := withRetry(ctx, s.retry, log, "list_students", func() ([]int64, error) {
		return s.gateway.ListStudentIDs(ctx)
	})
	if err != nil {
		log.Error("Error updating user streaks", zap.Error(err))
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	result := &StreakResult{Date: today}
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		active, reset, err := s.maintainStreak(ctx, id, today)
		result.UsersChecked++
		if err != nil {
			log.Warn("Failed to maintain streak", zap.Int64("user_id", id), zap.Error(err))
			result.Failed = append(result.Failed, UserFailure{UserID: id, Reason: err.Error()})
			errs = append(errs, fmt.Errorf("user %d: %w", id, err))
			continue
		}
		if active {
			result.ActiveToday++
		}
		if reset {
			result.StreaksReset++
		}
	}

	streaksReset.Add(float64(result.StreaksReset))
	log.Info("All user streaks updated",
		zap.Int("users_checked", result.UsersChecked),
		zap.Int("streaks_reset", result.StreaksReset),
		zap.Int("failed", len(result.Failed)),
	)

	if len(errs) > 0 {
		return result, fmt.Errorf("streak maintenance incomplete: %w", errors.Join(errs...))
	}
	return result, nil
}

func (s *MissionService) maintainStreak(ctx context.Context, userID int64, today time.Time) (active, reset bool, err error) {
	log := s.log.With(zap.Int64("user_id", userID))

	active, err = withRetry(ctx, s.retry, log, "has_activity", func() (bool, error) {
		return s.gateway.HasActivityOn(ctx, userID, today)
	})
	if err != nil || active {
		return active, false, err
	}

	reset, err = withRetry(ctx, s.retry, log, "reset_streak", func() (bool, error) {
		return s.gateway.ResetStreak(ctx, userID, today)
	})
	return false, reset, err
}
