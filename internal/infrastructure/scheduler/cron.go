package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/ports"
)

// CronScheduler runs registered jobs on standard five-field cron expressions.
type CronScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	loc     *time.Location
	logger  *slog.Logger
	entries map[string]cron.EntryID
	running bool
	stopped context.Context
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler evaluating expressions in loc.
func NewCronScheduler(loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Discard()
	}
	cl := cronLogger{logger: logger}
	return &CronScheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		loc:     loc,
		logger:  logger,
		entries: map[string]cron.EntryID{},
	}
}

// Register adds a named job. Names are unique.
func (c *CronScheduler) Register(name, spec string, job func(time.Time)) error {
	if job == nil {
		return fmt.Errorf("job %s: nil function", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}

	id, err := c.cron.AddFunc(spec, func() {
		trigger := time.Now().In(c.loc)
		c.logger.Debug("job triggered", "job", name, "at", trigger)
		job(trigger)
	})
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}
	c.entries[name] = id
	return nil
}

// Start begins dispatching jobs. Dispatching continues until Stop; the
// caller owns shutdown so it can wait for jobs in flight.
func (c *CronScheduler) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	c.running = true
	c.cron.Start()
	return nil
}

// Stop halts dispatching and waits for running jobs or ctx, whichever ends
// first. Later calls wait for the same jobs.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.running = false
		c.stopped = c.cron.Stop()
	}
	stopped := c.stopped
	c.mu.Unlock()

	if stopped == nil {
		return nil
	}
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next activation of a job, or false if it is unknown.
func (c *CronScheduler) Next(name string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.entries[name]
	if !ok {
		return time.Time{}, false
	}
	entry := c.cron.Entry(id)
	if entry.ID == 0 {
		return time.Time{}, false
	}
	return entry.Next, true
}

// cronLogger routes cron's own messages and recovered panics to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
