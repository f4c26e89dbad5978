package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mindagrowAPI/internal/leaderboard"
	"mindagrowAPI/internal/level"
	"mindagrowAPI/internal/mission"
	"mindagrowAPI/internal/types/session"
	"mindagrowAPI/internal/types/streak"
	"mindagrowAPI/repository"
	"mindagrowAPI/utils"
)

const LeaderboardLimit = 20

var (
	ErrInvalidLeaderboardKind = errors.New("invalid leaderboard type")
	ErrGameNotFound           = errors.New("game not found")
)

// EngagementStore is the persistence surface of the learner-facing reads.
type EngagementStore interface {
	EnsureDailyProgress(ctx context.Context, userID int64, day time.Time) (int64, error)
	ListDailyMissions(ctx context.Context, userID int64, day time.Time) ([]*mission.MissionWithProgress, error)
	GetStreak(ctx context.Context, userID int64) (*streak.UserStreak, error)
	CreateStreak(ctx context.Context, userID int64) error
	RecordActivity(ctx context.Context, userID int64, day time.Time) (*streak.UserStreak, error)
	GetLevel(ctx context.Context, userID int64) (*level.UserLevel, error)
	CreateLevel(ctx context.Context, userID int64) error
	WeeklyLeaderboard(ctx context.Context, weekStart time.Time, limit int) ([]*leaderboard.LeaderboardEntry, error)
	OverallLeaderboard(ctx context.Context, limit int) ([]*leaderboard.LeaderboardEntry, error)
	RecordGameSession(ctx context.Context, userID int64, gameKey string, sub session.Submission, at time.Time) (*session.Recorded, error)
	ListGameProgress(ctx context.Context, userID int64) ([]*session.GameProgress, error)
}

type LeaderboardCache interface {
	GetLeaderboard(ctx context.Context, key string) (*leaderboard.Leaderboard, bool, error)
	SetLeaderboard(ctx context.Context, key string, lb *leaderboard.Leaderboard) error
}

// MissionCompleter recounts a learner's daily missions after new gameplay.
type MissionCompleter interface {
	AutoCompleteMissions(ctx context.Context, userID int64) (*AutoCompleteResult, error)
}

// GameSessionResult is the outcome of one submitted round.
type GameSessionResult struct {
	Session  *session.GameSession  `json:"session"`
	Progress *session.GameProgress `json:"progress"`
	Streak   *streak.StreakStatus  `json:"streak"`
	Missions *AutoCompleteResult   `json:"missions,omitempty"`
}

type EngagementService struct {
	store    EngagementStore
	cache    LeaderboardCache
	missions MissionCompleter
	log      *zap.Logger
	now      func() time.Time
}

type EngagementOption func(*EngagementService)

// WithMissionCompleter makes game submissions update daily missions.
func WithMissionCompleter(m MissionCompleter) EngagementOption {
	return func(s *EngagementService) { s.missions = m }
}

func NewEngagementService(store EngagementStore, cache LeaderboardCache, log *zap.Logger, now func() time.Time, opts ...EngagementOption) *EngagementService {
	if now == nil {
		now = time.Now
	}
	s := &EngagementService{store: store, cache: cache, log: log, now: now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EngagementService) GetDailyMissions(ctx context.Context, userID int64) ([]*mission.MissionWithProgress, error) {
	today := utils.DateOf(s.now())

	if _, err := s.store.EnsureDailyProgress(ctx, userID, today); err != nil {
		return nil, fmt.Errorf("failed to prepare daily missions: %w", err)
	}

	missions, err := s.store.ListDailyMissions(ctx, userID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily missions: %w", err)
	}
	return missions, nil
}

// RecordActivity marks today as active for the learner and advances the streak.
func (s *EngagementService) RecordActivity(ctx context.Context, userID int64) (*streak.StreakStatus, error) {
	now := s.now()
	today := utils.DateOf(now)

	st, err := s.store.RecordActivity(ctx, userID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to record activity: %w", err)
	}

	if _, err := s.store.EnsureDailyProgress(ctx, userID, today); err != nil {
		s.log.Warn("Failed to prepare daily missions after activity", zap.Int64("user_id", userID), zap.Error(err))
	}

	return &streak.StreakStatus{UserStreak: st, SecondsUntilReset: utils.SecondsUntilNextDay(now)}, nil
}

// RecordGameSession stores a finished round, then brings today's missions up to date.
// The round is committed before missions are touched, so a mission failure is only logged.
func (s *EngagementService) RecordGameSession(ctx context.Context, userID int64, gameKey string, sub session.Submission) (*GameSessionResult, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	today := utils.DateOf(now)
	log := s.log.With(zap.Int64("user_id", userID), zap.String("game", gameKey))

	rec, err := s.store.RecordGameSession(ctx, userID, gameKey, sub, now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record game session: %w", err)
	}

	result := &GameSessionResult{
		Session:  rec.Session,
		Progress: rec.Progress,
		Streak:   &streak.StreakStatus{UserStreak: rec.Streak, SecondsUntilReset: utils.SecondsUntilNextDay(now)},
	}

	if _, err := s.store.EnsureDailyProgress(ctx, userID, today); err != nil {
		log.Warn("Failed to prepare daily missions after game session", zap.Error(err))
	}
	if s.missions != nil {
		missions, err := s.missions.AutoCompleteMissions(ctx, userID)
		if err != nil {
			log.Warn("Failed to update missions after game session", zap.Error(err))
		}
		result.Missions = missions
	}

	log.Info("Game session recorded",
		zap.Int64("session_id", rec.Session.ID),
		zap.Int("xp_earned", rec.Session.XPEarned),
		zap.Bool("game_completed", rec.Progress.IsCompleted),
	)
	return result, nil
}

func (s *EngagementService) GetGameProgress(ctx context.Context, userID int64) ([]*session.GameProgress, error) {
	progress, err := s.store.ListGameProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game progress: %w", err)
	}
	return progress, nil
}

func (s *EngagementService) GetStreak(ctx context.Context, userID int64) (*streak.StreakStatus, error) {
	now := s.now()

	st, err := s.store.GetStreak(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		if err := s.store.CreateStreak(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to create streak: %w", err)
		}
		st = &streak.UserStreak{UserID: userID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}

	return &streak.StreakStatus{UserStreak: st, SecondsUntilReset: utils.SecondsUntilNextDay(now)}, nil
}

func (s *EngagementService) GetLevel(ctx context.Context, userID int64) (*level.UserLevel, error) {
	lvl, err := s.store.GetLevel(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		if err := s.store.CreateLevel(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to create level: %w", err)
		}
		return level.Initial(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get level: %w", err)
	}
	return lvl, nil
}

// GetLeaderboard serves the top learners, from cache when possible.
// Cache errors only degrade to a database read.
func (s *EngagementService) GetLeaderboard(ctx context.Context, kind leaderboard.Kind) (*leaderboard.Leaderboard, error) {
	if !kind.Valid() {
		return nil, ErrInvalidLeaderboardKind
	}

	lb := &leaderboard.Leaderboard{Kind: kind}
	key := string(kind)
	if kind == leaderboard.KindWeekly {
		weekStart := utils.WeekStart(s.now())
		lb.WeekStart = &weekStart
		key = fmt.Sprintf("%s:%s", kind, utils.FormatDate(weekStart))
	}

	if s.cache != nil {
		cached, ok, err := s.cache.GetLeaderboard(ctx, key)
		switch {
		case err != nil:
			s.log.Warn("Leaderboard cache read failed", zap.String("key", key), zap.Error(err))
			leaderboardCacheLookups.WithLabelValues("error").Inc()
		case ok:
			leaderboardCacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			leaderboardCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	var (
		entries []*leaderboard.LeaderboardEntry
		err     error
	)
	if kind == leaderboard.KindWeekly {
		entries, err = s.store.WeeklyLeaderboard(ctx, *lb.WeekStart, LeaderboardLimit)
	} else {
		entries, err = s.store.OverallLeaderboard(ctx, LeaderboardLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s leaderboard: %w", kind, err)
	}

	lb.Entries = entries
	lb.TotalUsers = len(entries)

	if s.cache != nil {
		if err := s.cache.SetLeaderboard(ctx, key, lb); err != nil {
			s.log.Warn("Leaderboard cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return lb, nil
}
