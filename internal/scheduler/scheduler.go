// Package scheduler runs periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RefreshJobName is the name of the archive refresh job.
const RefreshJobName = "refresh"

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 30 * time.Minute

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks
type Scheduler struct {
	cron       *cron.Cron
	timezone   *time.Location
	jobTimeout time.Duration
	logger     *slog.Logger

	// base is cancelled by Stop so running jobs see shutdown.
	base   context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a new scheduler with the given timezone. A run that is still
// going when its next tick fires is skipped rather than overlapped.
func New(timezone string, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scheduler"))

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       c,
		timezone:   loc,
		jobTimeout: DefaultJobTimeout,
		logger:     logger,
		base:       base,
		cancel:     cancel,
		jobs:       make(map[string]cron.EntryID),
	}, nil
}

// SetJobTimeout changes the per-run timeout for jobs. Runs already in
// progress keep their deadline.
func (s *Scheduler) SetJobTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.jobTimeout = d
	s.mu.Unlock()
}

// AddJob adds a job with a cron schedule, replacing any job of the same name.
// schedule format: "0 */6 * * *" (every six hours)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(s.base, name, job); err != nil {
			s.logger.Error("job failed", slog.String("job", name), slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.mu.Unlock()

	s.logger.Info("added job", slog.String("job", name), slog.String("schedule", schedule))
	return nil
}

// AddRefreshJob schedules the archive refresh
func (s *Scheduler) AddRefreshJob(schedule string, job Job) error {
	return s.AddJob(RefreshJobName, schedule, job)
}

// SyncRefreshJob makes the refresh job match the configuration: it is
// dropped when disabled and rescheduled otherwise.
func (s *Scheduler) SyncRefreshJob(enabled bool, schedule string, job Job) error {
	if !enabled {
		s.RemoveJob(RefreshJobName)
		return nil
	}
	return s.AddRefreshJob(schedule, job)
}

func (s *Scheduler) run(parent context.Context, name string, job Job) error {
	s.mu.Lock()
	timeout := s.jobTimeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	s.logger.Info("starting job", slog.String("job", name))
	start := time.Now()

	if err := job(ctx); err != nil {
		return err
	}
	s.logger.Info("job completed", slog.String("job", name), slog.Duration("elapsed", time.Since(start)))
	return nil
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info("removed job", slog.String("job", name))
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", slog.String("timezone", s.timezone.String()))
	s.cron.Start()
}

// Stop halts the scheduler and cancels running jobs. The returned context
// is done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("stopping scheduler")
	s.cancel()
	return s.cron.Stop()
}

// RunNow immediately executes a job outside the schedule. The job sees
// cancellation of ctx as well as Stop, and gets the usual timeout.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()
	if s.base.Err() != nil {
		cancel()
	}

	return s.run(ctx, name, job)
}

// ListJobs returns info about scheduled jobs, sorted by name
func (s *Scheduler) ListJobs() []JobInfo {
	entries := s.cron.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// cronLogger routes cron's own messages to slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
