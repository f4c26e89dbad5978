package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindagrowAPI/internal/leaderboard"
	"mindagrowAPI/internal/level"
	"mindagrowAPI/internal/mission"
	"mindagrowAPI/internal/types/session"
	"mindagrowAPI/internal/types/streak"
	"mindagrowAPI/repository"
	"mindagrowAPI/utils"
)

type fakeStore struct {
	ensured     []time.Time
	missions    []*mission.MissionWithProgress
	streaks     map[int64]*streak.UserStreak
	levels      map[int64]*level.UserLevel
	weekly      []*leaderboard.LeaderboardEntry
	overall     []*leaderboard.LeaderboardEntry
	weeklyReads int
	weekArg     time.Time
	err         error

	games      map[string]session.Game
	progress   map[string]*session.GameProgress
	sessions   []*session.GameSession
	sessionErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		streaks: map[int64]*streak.UserStreak{},
		levels:  map[int64]*level.UserLevel{},
		games: map[string]session.Game{
			"mazechallenge": {ID: 3, GameKey: "mazechallenge", Type: "maze", Difficulty: "Hard"},
			"yesorno":       {ID: 2, GameKey: "yesorno", Type: "yes_no", Difficulty: "Easy"},
		},
		progress: map[string]*session.GameProgress{},
	}
}

func (f *fakeStore) EnsureDailyProgress(_ context.Context, _ int64, day time.Time) (int64, error) {
	f.ensured = append(f.ensured, day)
	return int64(len(f.missions)), f.err
}

func (f *fakeStore) ListDailyMissions(context.Context, int64, time.Time) ([]*mission.MissionWithProgress, error) {
	return f.missions, f.err
}

func (f *fakeStore) GetStreak(_ context.Context, userID int64) (*streak.UserStreak, error) {
	s, ok := f.streaks[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) CreateStreak(_ context.Context, userID int64) error {
	f.streaks[userID] = &streak.UserStreak{UserID: userID}
	return nil
}

func (f *fakeStore) RecordActivity(_ context.Context, userID int64, day time.Time) (*streak.UserStreak, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.streaks[userID]
	if !ok {
		s = &streak.UserStreak{UserID: userID}
		f.streaks[userID] = s
	}
	s.Advance(day)
	return s, nil
}

func (f *fakeStore) GetLevel(_ context.Context, userID int64) (*level.UserLevel, error) {
	l, ok := f.levels[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return l, nil
}

func (f *fakeStore) CreateLevel(_ context.Context, userID int64) error {
	f.levels[userID] = level.Initial(userID)
	return nil
}

func (f *fakeStore) WeeklyLeaderboard(_ context.Context, weekStart time.Time, _ int) ([]*leaderboard.LeaderboardEntry, error) {
	f.weeklyReads++
	f.weekArg = weekStart
	return f.weekly, f.err
}

func (f *fakeStore) OverallLeaderboard(context.Context, int) ([]*leaderboard.LeaderboardEntry, error) {
	return f.overall, f.err
}

func (f *fakeStore) RecordGameSession(_ context.Context, userID int64, gameKey string, sub session.Submission, at time.Time) (*session.Recorded, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	game, ok := f.games[gameKey]
	if !ok {
		return nil, repository.ErrNotFound
	}

	p, ok := f.progress[gameKey]
	if !ok {
		p = &session.GameProgress{Game: game}
		f.progress[gameKey] = p
	}
	p.TotalQuestions += sub.QuestionsAnswered
	p.CorrectAnswers += sub.CorrectAnswers
	if p.TotalQuestions > 0 {
		p.Percentage = math.Min(100, float64(p.CorrectAnswers)*100/float64(p.TotalQuestions))
	}
	p.IsCompleted = p.TotalQuestions > 0 && p.CorrectAnswers >= p.TotalQuestions
	p.LastPlayedAt = at

	gs := &session.GameSession{
		ID:                int64(len(f.sessions) + 1),
		UserID:            userID,
		GameID:            game.ID,
		SessionEnd:        &at,
		IsCompleted:       true,
		Score:             sub.Score(),
		XPEarned:          session.XPEarned(sub.CorrectAnswers, p.IsCompleted, game.Difficulty),
		QuestionsAnswered: sub.QuestionsAnswered,
		CorrectAnswers:    sub.CorrectAnswers,
	}
	f.sessions = append(f.sessions, gs)

	lvl, ok := f.levels[userID]
	if !ok {
		lvl = level.Initial(userID)
		f.levels[userID] = lvl
	}
	lvl.TotalXP += gs.XPEarned

	st, _ := f.RecordActivity(context.Background(), userID, utils.DateOf(at))
	return &session.Recorded{Session: gs, Progress: p, Streak: st}, nil
}

func (f *fakeStore) ListGameProgress(context.Context, int64) ([]*session.GameProgress, error) {
	out := []*session.GameProgress{}
	for _, p := range f.progress {
		out = append(out, p)
	}
	return out, f.err
}

type fakeCompleter struct {
	calls []int64
	err   error
}

func (c *fakeCompleter) AutoCompleteMissions(_ context.Context, userID int64) (*AutoCompleteResult, error) {
	c.calls = append(c.calls, userID)
	if c.err != nil {
		return nil, c.err
	}
	return &AutoCompleteResult{UserID: userID, GamesPlayed: 1, MissionsCompleted: 1}, nil
}

type memoryCache struct {
	entries map[string]*leaderboard.Leaderboard
	readErr error
}

func (m *memoryCache) GetLeaderboard(_ context.Context, key string) (*leaderboard.Leaderboard, bool, error) {
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	lb, ok := m.entries[key]
	return lb, ok, nil
}

func (m *memoryCache) SetLeaderboard(_ context.Context, key string, lb *leaderboard.Leaderboard) error {
	m.entries[key] = lb
	return nil
}

func newEngagement(store EngagementStore, cache LeaderboardCache, now string) *EngagementService {
	return NewEngagementService(store, cache, zap.NewNop(), fixedClock(now))
}

func TestGetDailyMissionsEnsuresRows(t *testing.T) {
	store := newFakeStore()
	store.missions = []*mission.MissionWithProgress{{DailyMission: mission.DailyMission{ID: 1, MissionType: mission.TypeGame}}}
	svc := newEngagement(store, nil, "2024-06-10T08:00:00Z")

	got, err := svc.GetDailyMissions(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	require.Len(t, store.ensured, 1)
	assert.Equal(t, day("2024-06-10"), store.ensured[0])
}

func TestRecordActivityAdvancesStreak(t *testing.T) {
	store := newFakeStore()
	yesterday := day("2024-06-09")
	store.streaks[3] = &streak.UserStreak{UserID: 3, CurrentStreak: 2, LongestStreak: 2, LastActivityDate: &yesterday}
	svc := newEngagement(store, nil, "2024-06-10T23:00:00Z")

	st, err := svc.RecordActivity(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, st.CurrentStreak)
	assert.Equal(t, 3, st.LongestStreak)
	assert.True(t, st.IsActive)
	assert.Equal(t, int64(3600), st.SecondsUntilReset)
}

func TestRecordActivityFailure(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	svc := newEngagement(store, nil, "2024-06-10T23:00:00Z")

	_, err := svc.RecordActivity(context.Background(), 3)
	assert.ErrorIs(t, err, store.err)
}

func TestGetStreakCreatesMissingRow(t *testing.T) {
	store := newFakeStore()
	svc := newEngagement(store, nil, "2024-06-10T00:00:00Z")

	st, err := svc.GetStreak(context.Background(), 8)
	require.NoError(t, err)
	assert.Zero(t, st.CurrentStreak)
	assert.False(t, st.IsActive)
	assert.Equal(t, int64(86400), st.SecondsUntilReset)
	assert.Contains(t, store.streaks, int64(8))
}

func TestGetLevelCreatesMissingRow(t *testing.T) {
	store := newFakeStore()
	svc := newEngagement(store, nil, "2024-06-10T00:00:00Z")

	lvl, err := svc.GetLevel(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, 1, lvl.CurrentLevel)
	assert.Equal(t, 100, lvl.XPToNextLevel)
	assert.Contains(t, store.levels, int64(8))
}

func TestGetLeaderboardRejectsUnknownKind(t *testing.T) {
	svc := newEngagement(newFakeStore(), nil, "2024-06-12T00:00:00Z")

	_, err := svc.GetLeaderboard(context.Background(), leaderboard.Kind("monthly"))
	assert.ErrorIs(t, err, ErrInvalidLeaderboardKind)
}

func TestGetLeaderboardWeeklyUsesCache(t *testing.T) {
	store := newFakeStore()
	store.weekly = []*leaderboard.LeaderboardEntry{{UserID: 1, Name: "Ani", TotalXP: 300, Rank: 1}}
	cache := &memoryCache{entries: map[string]*leaderboard.Leaderboard{}}
	svc := newEngagement(store, cache, "2024-06-12T09:00:00Z")

	lb, err := svc.GetLeaderboard(context.Background(), leaderboard.KindWeekly)
	require.NoError(t, err)
	assert.Equal(t, 1, lb.TotalUsers)
	require.NotNil(t, lb.WeekStart)
	assert.Equal(t, day("2024-06-10"), *lb.WeekStart)
	assert.Equal(t, day("2024-06-10"), store.weekArg)
	assert.Contains(t, cache.entries, "weekly:2024-06-10")

	_, err = svc.GetLeaderboard(context.Background(), leaderboard.KindWeekly)
	require.NoError(t, err)
	assert.Equal(t, 1, store.weeklyReads)
}

func TestGetLeaderboardFallsBackWhenCacheFails(t *testing.T) {
	store := newFakeStore()
	store.overall = []*leaderboard.LeaderboardEntry{{UserID: 1}, {UserID: 2}}
	cache := &memoryCache{entries: map[string]*leaderboard.Leaderboard{}, readErr: errors.New("redis down")}
	svc := newEngagement(store, cache, "2024-06-12T09:00:00Z")

	lb, err := svc.GetLeaderboard(context.Background(), leaderboard.KindOverall)
	require.NoError(t, err)
	assert.Nil(t, lb.WeekStart)
	assert.Equal(t, 2, lb.TotalUsers)
}

func TestRecordGameSessionAppliesXPAndUpdatesMissions(t *testing.T) {
	store := newFakeStore()
	completer := &fakeCompleter{}
	svc := NewEngagementService(store, nil, zap.NewNop(), fixedClock("2024-06-10T15:00:00Z"), WithMissionCompleter(completer))

	res, err := svc.RecordGameSession(context.Background(), 4, "mazechallenge", session.Submission{QuestionsAnswered: 10, CorrectAnswers: 7})
	require.NoError(t, err)

	assert.Equal(t, 70, res.Session.Score)
	assert.Equal(t, 105, res.Session.XPEarned, "7 correct on hard is 70 * 1.5")
	assert.False(t, res.Progress.IsCompleted)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	assert.Equal(t, int64(9*3600), res.Streak.SecondsUntilReset)
	require.NotNil(t, res.Missions)
	assert.Equal(t, 1, res.Missions.MissionsCompleted)
	assert.Equal(t, []int64{4}, completer.calls)
	require.Len(t, store.ensured, 1)
	assert.Equal(t, day("2024-06-10"), store.ensured[0])
	assert.Equal(t, 105, store.levels[4].TotalXP)
}

func TestRecordGameSessionCompletionBonusOnLaterRound(t *testing.T) {
	store := newFakeStore()
	svc := newEngagement(store, nil, "2024-06-10T15:00:00Z")
	ctx := context.Background()

	first, err := svc.RecordGameSession(ctx, 4, "yesorno", session.Submission{QuestionsAnswered: 3, CorrectAnswers: 3})
	require.NoError(t, err)
	assert.True(t, first.Progress.IsCompleted)
	assert.Equal(t, 80, first.Session.XPEarned, "3 correct plus the completion bonus on easy")
	assert.Nil(t, first.Missions)

	second, err := svc.RecordGameSession(ctx, 4, "yesorno", session.Submission{QuestionsAnswered: 2, CorrectAnswers: 1})
	require.NoError(t, err)
	assert.False(t, second.Progress.IsCompleted)
	assert.Equal(t, 5, second.Progress.TotalQuestions)
	assert.InDelta(t, 80.0, second.Progress.Percentage, 0.001)
	assert.Equal(t, 10, second.Session.XPEarned)
}

func TestRecordGameSessionRejectsBadSubmission(t *testing.T) {
	store := newFakeStore()
	svc := newEngagement(store, nil, "2024-06-10T15:00:00Z")

	_, err := svc.RecordGameSession(context.Background(), 4, "yesorno", session.Submission{QuestionsAnswered: 2, CorrectAnswers: 5})
	assert.ErrorIs(t, err, session.ErrInvalidSubmission)
	assert.Empty(t, store.sessions)
}

func TestRecordGameSessionUnknownGame(t *testing.T) {
	svc := newEngagement(newFakeStore(), nil, "2024-06-10T15:00:00Z")

	_, err := svc.RecordGameSession(context.Background(), 4, "chess", session.Submission{QuestionsAnswered: 1})
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestRecordGameSessionSurvivesMissionFailure(t *testing.T) {
	store := newFakeStore()
	completer := &fakeCompleter{err: errors.New("connection refused")}
	svc := NewEngagementService(store, nil, zap.NewNop(), fixedClock("2024-06-10T15:00:00Z"), WithMissionCompleter(completer))

	res, err := svc.RecordGameSession(context.Background(), 4, "mazechallenge", session.Submission{QuestionsAnswered: 1, CorrectAnswers: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Missions)
	assert.Len(t, store.sessions, 1)
}

func TestRecordGameSessionStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.sessionErr = errors.New("connection reset")
	completer := &fakeCompleter{}
	svc := NewEngagementService(store, nil, zap.NewNop(), fixedClock("2024-06-10T15:00:00Z"), WithMissionCompleter(completer))

	_, err := svc.RecordGameSession(context.Background(), 4, "mazechallenge", session.Submission{QuestionsAnswered: 1})
	assert.ErrorIs(t, err, store.sessionErr)
	assert.Empty(t, completer.calls)
}
