package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindagrowAPI/config"
	"mindagrowAPI/services"
)

type memLocker struct {
	mu      sync.Mutex
	holders map[string]string
	err     error
}

func newMemLocker() *memLocker {
	return &memLocker{holders: map[string]string{}}
}

func (l *memLocker) TryLock(_ context.Context, job, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if _, held := l.holders[job]; held {
		return false, nil
	}
	l.holders[job] = token
	return true, nil
}

func (l *memLocker) Unlock(_ context.Context, job, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[job] == token {
		delete(l.holders, job)
	}
	return nil
}

func TestDailyNext(t *testing.T) {
	d := Daily{Hour: 0, Minute: 5}

	before := time.Date(2024, 6, 10, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 5, 0, 0, time.UTC), d.Next(before))

	exactly := time.Date(2024, 6, 10, 0, 5, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 11, 0, 5, 0, 0, time.UTC), d.Next(exactly))

	wib := time.FixedZone("WIB", 7*60*60)
	local := time.Date(2024, 6, 10, 6, 0, 0, 0, wib) // 23:00 UTC on the 9th
	assert.Equal(t, time.Date(2024, 6, 10, 0, 5, 0, 0, time.UTC), d.Next(local))
}

func TestDailyAtRejectsBadClock(t *testing.T) {
	_, err := DailyAt("24:00")
	assert.Error(t, err)
	d, err := DailyAt("23:55")
	require.NoError(t, err)
	assert.Equal(t, "daily at 23:55 UTC", d.String())
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := New(zap.NewNop(), time.Second)
	job := Job{Name: "a", Cadence: Every(time.Hour), Run: func(context.Context) (any, error) { return nil, nil }}

	require.NoError(t, s.Register(job))
	assert.Error(t, s.Register(job))
	assert.Error(t, s.Register(Job{Name: "b"}))
}

func TestRunNowUnknownJob(t *testing.T) {
	s := New(zap.NewNop(), time.Second)

	_, err := s.RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunNowReportsResult(t *testing.T) {
	locker := newMemLocker()
	s := New(zap.NewNop(), time.Second, WithLocker(locker))
	require.NoError(t, s.Register(Job{
		Name:    "reset",
		Cadence: Every(time.Hour),
		Run: func(context.Context) (any, error) {
			return &services.ResetResult{Deleted: 3}, nil
		},
	}))

	report, err := s.RunNow(context.Background(), "reset")
	require.NoError(t, err)
	assert.Equal(t, "reset", report.Job)
	assert.Equal(t, "manual", report.Trigger)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, int64(3), report.Result.(*services.ResetResult).Deleted)
	assert.Empty(t, locker.holders, "lock is released after the run")
}

func TestRunNowSkipsWhenLockedElsewhere(t *testing.T) {
	locker := newMemLocker()
	locker.holders["reset"] = "other-instance"
	var calls int32
	s := New(zap.NewNop(), time.Second, WithLocker(locker))
	require.NoError(t, s.Register(Job{
		Name:    "reset",
		Cadence: Every(time.Hour),
		Run: func(context.Context) (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		},
	}))

	_, err := s.RunNow(context.Background(), "reset")
	assert.ErrorIs(t, err, ErrJobLocked)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Equal(t, "other-instance", locker.holders["reset"])
}

func TestRunNowProceedsWhenLockerFails(t *testing.T) {
	locker := newMemLocker()
	locker.err = errors.New("redis down")
	s := New(zap.NewNop(), time.Second, WithLocker(locker))
	require.NoError(t, s.Register(Job{
		Name:    "reset",
		Cadence: Every(time.Hour),
		Run:     func(context.Context) (any, error) { return "ok", nil },
	}))

	report, err := s.RunNow(context.Background(), "reset")
	require.NoError(t, err)
	assert.Equal(t, "ok", report.Result)
}

func TestRunNowRejectsOverlap(t *testing.T) {
	s := New(zap.NewNop(), time.Second)
	started := make(chan struct{})
	finish := make(chan struct{})
	require.NoError(t, s.Register(Job{
		Name:    "slow",
		Cadence: Every(time.Hour),
		Run: func(context.Context) (any, error) {
			close(started)
			<-finish
			return nil, nil
		},
	}))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "slow")
		done <- err
	}()
	<-started

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobLocked)

	close(finish)
	assert.NoError(t, <-done)
}

func TestRunAppliesTimeout(t *testing.T) {
	s := New(zap.NewNop(), 20*time.Millisecond)
	require.NoError(t, s.Register(Job{
		Name:    "hang",
		Cadence: Every(time.Hour),
		Run: func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	report, err := s.RunNow(context.Background(), "hang")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.Error)
}

func TestStartRunsOnCadenceUntilCancelled(t *testing.T) {
	var calls int32
	s := New(zap.NewNop(), time.Second, WithFixedInterval(5*time.Millisecond))
	require.NoError(t, s.Register(Job{
		Name:    "tick",
		Cadence: Daily{Hour: 0, Minute: 5},
		Run: func(context.Context) (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}

type fakeMaintainer struct {
	resets, rollups, streaks int32
}

func (f *fakeMaintainer) ResetDailyMissions(context.Context) (*services.ResetResult, error) {
	atomic.AddInt32(&f.resets, 1)
	return &services.ResetResult{}, nil
}

func (f *fakeMaintainer) UpdateWeeklyLeaderboard(context.Context) (*services.RollupResult, error) {
	atomic.AddInt32(&f.rollups, 1)
	return &services.RollupResult{}, nil
}

func (f *fakeMaintainer) UpdateAllUserStreaks(context.Context) (*services.StreakResult, error) {
	atomic.AddInt32(&f.streaks, 1)
	return nil, errors.New("streak maintenance incomplete")
}

func TestRegisterMaintenanceJobs(t *testing.T) {
	cfg := config.Config{
		ResetMissionsAt:     "00:05",
		StreakMaintenanceAt: "23:55",
		LeaderboardInterval: time.Hour,
	}
	m := &fakeMaintainer{}
	s := New(zap.NewNop(), time.Second)

	require.NoError(t, RegisterMaintenanceJobs(s, m, cfg))
	assert.Equal(t, []string{JobResetMissions, JobStreakMaintenance, JobWeeklyLeaderboard}, s.Jobs())

	_, err := s.RunNow(context.Background(), JobWeeklyLeaderboard)
	require.NoError(t, err)
	assert.Equal(t, int32(1), m.rollups)

	report, err := s.RunNow(context.Background(), JobStreakMaintenance)
	assert.Error(t, err)
	assert.Equal(t, int32(1), m.streaks)

	require.NotNil(t, report)
	assert.Nil(t, report.Result)
	body, err := json.Marshal(report)
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"result"`)
}

func TestRegisterMaintenanceJobsInvalidConfig(t *testing.T) {
	s := New(zap.NewNop(), time.Second)
	err := RegisterMaintenanceJobs(s, &fakeMaintainer{}, config.Config{
		ResetMissionsAt:     "nope",
		StreakMaintenanceAt: "23:55",
		LeaderboardInterval: time.Hour,
	})
	assert.Error(t, err)
}

func TestRunCountsOutcomes(t *testing.T) {
	s := New(zap.NewNop(), time.Second)
	require.NoError(t, s.Register(Job{
		Name:    "counted",
		Cadence: Every(time.Hour),
		Run:     func(context.Context) (any, error) { return nil, errors.New("boom") },
	}))

	before := testutil.ToFloat64(jobRuns.WithLabelValues("counted", statusFailed))
	_, err := s.RunNow(context.Background(), "counted")
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(jobRuns.WithLabelValues("counted", statusFailed)))
}
