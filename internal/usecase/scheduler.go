package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/ports"
)

// Job names accepted by RunJob and used as lock keys.
const (
	JobPoll     = "poll"
	JobSubmit   = "submit"
	JobComplete = "complete"
	JobNotify   = "notify"
	JobAll      = "all"
)

// ErrJobRunning is returned when another run of the same job holds the lock.
var ErrJobRunning = errors.New("job is already running")

// SchedulerDeps wires the job runner.
type SchedulerDeps struct {
	Driver        ports.Scheduler
	Locker        ports.Locker
	LockTTL       time.Duration
	Location      *time.Location
	Poller        *FeedPoller
	Transcription *TranscriptionManager
	Notifications *NotificationScheduler
	// Specs maps job names to cron expressions. Jobs without a spec are not scheduled.
	Specs  map[string]string
	Logger *slog.Logger
	Now    func() time.Time
}

// Scheduler wires the cron driver with the use cases.
type Scheduler struct {
	driver        ports.Scheduler
	locker        ports.Locker
	lockTTL       time.Duration
	loc           *time.Location
	poller        *FeedPoller
	transcription *TranscriptionManager
	notifications *NotificationScheduler
	specs         map[string]string
	logger        *slog.Logger
	now           func() time.Time
}

// NewScheduler returns a helper to run jobs once or start recurring runs.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		driver:        deps.Driver,
		locker:        deps.Locker,
		lockTTL:       deps.LockTTL,
		loc:           deps.Location,
		poller:        deps.Poller,
		transcription: deps.Transcription,
		notifications: deps.Notifications,
		specs:         deps.Specs,
		logger:        deps.Logger,
		now:           deps.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 30 * time.Minute
	}
	return s
}

// Jobs lists the schedulable jobs in pipeline order.
func Jobs() []string {
	return []string{JobPoll, JobSubmit, JobComplete, JobNotify}
}

// RunJob executes one job, or every job in pipeline order for JobAll.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	if name != JobAll {
		return s.runLocked(ctx, name)
	}

	var errs []error
	for _, job := range Jobs() {
		if err := s.runLocked(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) runLocked(ctx context.Context, name string) error {
	run, err := s.job(name)
	if err != nil {
		return err
	}

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, name, s.lockTTL)
		if err != nil {
			return fmt.Errorf("lock %s: %w", name, err)
		}
		if !ok {
			return ErrJobRunning
		}
		defer release()
	}

	// one reading of the clock per run
	now := s.now().In(s.loc)
	started := time.Now()
	err = run(ctx, now)
	s.logger.Info("job finished", "job", name, "took", time.Since(started).Round(time.Millisecond), "error", err)
	return err
}

func (s *Scheduler) job(name string) (func(context.Context, time.Time) error, error) {
	switch name {
	case JobPoll:
		if s.poller == nil {
			break
		}
		return func(ctx context.Context, now time.Time) error {
			_, err := s.poller.PollAll(ctx, now)
			return err
		}, nil
	case JobSubmit:
		if s.transcription == nil {
			break
		}
		return func(ctx context.Context, now time.Time) error {
			_, err := s.transcription.SubmitPending(ctx, now)
			return err
		}, nil
	case JobComplete:
		if s.transcription == nil {
			break
		}
		return func(ctx context.Context, now time.Time) error {
			_, err := s.transcription.CompletePending(ctx, now)
			return err
		}, nil
	case JobNotify:
		if s.notifications == nil {
			break
		}
		return func(ctx context.Context, now time.Time) error {
			_, err := s.notifications.Run(ctx, now)
			return err
		}, nil
	default:
		return nil, fmt.Errorf("unknown job %q", name)
	}
	return nil, fmt.Errorf("job %q is not configured", name)
}

// Start registers every job that has a schedule with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	for _, name := range Jobs() {
		spec := s.specs[name]
		if spec == "" {
			continue
		}
		if _, err := s.job(name); err != nil {
			return err
		}

		err := s.driver.Register(name, spec, func(time.Time) {
			err := s.runLocked(ctx, name)
			switch {
			case errors.Is(err, ErrJobRunning):
				s.logger.Info("previous run still active, skipping", "job", name)
			case err != nil:
				s.logger.Error("job failed", "job", name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		s.logger.Info("job scheduled", "job", name, "spec", spec)
	}

	return s.driver.Start(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
