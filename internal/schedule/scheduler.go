package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobLocked  = errors.New("job is already running")
)

type RunFunc func(ctx context.Context) (any, error)

type Job struct {
	Name    string
	Cadence Cadence
	Run     RunFunc
}

// Locker guards a job across instances. token identifies the holder.
type Locker interface {
	TryLock(ctx context.Context, job, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, job, token string) error
}

type RunReport struct {
	RunID     string        `json:"run_id"`
	Job       string        `json:"job"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Result    any           `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type Scheduler struct {
	jobs    map[string]*Job
	locker  Locker
	timeout time.Duration
	every   time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

// WithLocker enables the distributed job lock.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithFixedInterval overrides every cadence, as used in development.
func WithFixedInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.every = d }
}

func New(log *zap.Logger, timeout time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:    make(map[string]*Job),
		timeout: timeout,
		log:     log,
		running: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil || job.Cadence == nil {
		return fmt.Errorf("invalid job definition %q", job.Name)
	}
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	s.jobs[job.Name] = &job
	return nil
}

func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches one loop per job. Loops exit when ctx is done; Wait blocks until they have.
func (s *Scheduler) Start(ctx context.Context) {
	for _, name := range s.Jobs() {
		job := s.jobs[name]
		cadence := job.Cadence
		if s.every > 0 {
			cadence = Every(s.every)
		}

		s.log.Info("Scheduling job", zap.String("job", name), zap.String("cadence", cadence.String()))

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, job, cadence)
		}()
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job *Job, cadence Cadence) {
	for {
		now := time.Now()
		next := cadence.Next(now)
		delay := next.Sub(now)
		s.log.Debug("Scheduled next run",
			zap.String("job", job.Name),
			zap.Time("next_run", next),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.run(ctx, job, "schedule"); err != nil && !errors.Is(err, ErrJobLocked) {
				s.log.Error("Scheduled job run failed", zap.String("job", job.Name), zap.Error(err))
			}
		}
	}
}

// RunNow runs a registered job immediately through the same lock and metrics path as the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*RunReport, error) {
	job, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, job, "manual")
}

func (s *Scheduler) run(ctx context.Context, job *Job, trigger string) (*RunReport, error) {
	runID := uuid.NewString()
	log := s.log.With(
		zap.String("job", job.Name),
		zap.String("run_id", runID),
		zap.String("trigger", trigger),
	)

	if !s.claim(job.Name) {
		jobRuns.WithLabelValues(job.Name, statusSkipped).Inc()
		log.Info("Job already running in this instance, skipping")
		return nil, ErrJobLocked
	}
	defer s.release(job.Name)

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, job.Name, runID, s.timeout)
		switch {
		case err != nil:
			log.Warn("Distributed lock unavailable, running with local guard only", zap.Error(err))
		case !ok:
			jobRuns.WithLabelValues(job.Name, statusSkipped).Inc()
			log.Info("Job locked by another instance, skipping")
			return nil, ErrJobLocked
		default:
			defer func() {
				unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := s.locker.Unlock(unlockCtx, job.Name, runID); err != nil {
					log.Warn("Failed to release job lock", zap.Error(err))
				}
			}()
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := &RunReport{RunID: runID, Job: job.Name, Trigger: trigger, StartedAt: time.Now().UTC()}
	log.Info("Job started")

	result, err := job.Run(runCtx)
	report.Duration = time.Since(report.StartedAt)
	report.Result = result
	jobDuration.WithLabelValues(job.Name).Observe(report.Duration.Seconds())

	if err != nil {
		report.Error = err.Error()
		jobRuns.WithLabelValues(job.Name, statusFailed).Inc()
		log.Error("Job failed", zap.Duration("duration", report.Duration), zap.Error(err))
		return report, fmt.Errorf("job %s failed: %w", job.Name, err)
	}

	jobRuns.WithLabelValues(job.Name, statusSuccess).Inc()
	log.Info("Job completed", zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *Scheduler) claim(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}
