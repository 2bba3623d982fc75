package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"PodcastNotifier/internal/config"
	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/infrastructure/feed"
	"PodcastNotifier/internal/infrastructure/llm"
	"PodcastNotifier/internal/infrastructure/lock"
	"PodcastNotifier/internal/infrastructure/media"
	"PodcastNotifier/internal/infrastructure/ml"
	"PodcastNotifier/internal/infrastructure/objectstore"
	"PodcastNotifier/internal/infrastructure/scheduler"
	"PodcastNotifier/internal/infrastructure/storage"
	"PodcastNotifier/internal/infrastructure/telegram"
	"PodcastNotifier/internal/infrastructure/transcribe"
	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/ports"
	"PodcastNotifier/internal/summarizer"
	"PodcastNotifier/internal/usecase"
)

const (
	fallbackSummarizer = "excerpt"
	shutdownTimeout    = 30 * time.Second
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg           config.Config
	logger        *slog.Logger
	repo          *storage.Repository
	closers       []io.Closer
	scheduler     *usecase.Scheduler
	subscriptions *usecase.SubscriptionService
}

// New opens the store and builds every adapter and use case.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, dialect, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	repo := storage.NewRepository(db, dialect)
	a := &Application{cfg: cfg, logger: baseLogger, repo: repo, closers: []io.Closer{repo}}

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	feedClient := &http.Client{Timeout: cfg.Feeds.Timeout}
	source := feed.NewRSSSource(feedClient, cfg.Feeds.UserAgent, logger.With("component", "feed"))
	// downloads are bounded by the per-call context instead
	downloader := media.NewDownloader(&http.Client{}, cfg.Feeds.UserAgent)

	awsCfg, err := objectstore.LoadAWSConfig(ctx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	store := objectstore.NewS3Store(objectstore.NewS3Client(awsCfg, cfg.ObjectStore))
	transcriber := transcribe.NewAWSTranscriber(transcribe.NewClient(awsCfg))

	summ, err := a.summarizer()
	if err != nil {
		return err
	}

	notifier := telegram.NewNotifier(cfg.Notifications.Telegram, cfg.Notifications.SendTimeout, logger.With("component", "telegram"))

	locker, err := a.locker(ctx)
	if err != nil {
		return err
	}

	poller := usecase.NewFeedPoller(usecase.PollerDeps{
		Podcasts:    a.repo,
		Episodes:    a.repo,
		Source:      source,
		Logger:      logger.With("component", "poller"),
		MaxEpisodes: cfg.Feeds.MaxEpisodes,
		Lookback:    cfg.Feeds.Lookback,
		Workers:     cfg.Feeds.Workers,
		Timeout:     cfg.Feeds.Timeout,
	})

	tc := cfg.Transcription
	transcription := usecase.NewTranscriptionManager(usecase.TranscriptionDeps{
		Episodes:          a.repo,
		Jobs:              a.repo,
		Store:             store,
		Transcriber:       transcriber,
		Downloader:        downloader,
		ContentType:       media.ContentType,
		Logger:            logger.With("component", "transcription"),
		AudioBucket:       tc.AudioBucket,
		TranscriptBucket:  tc.TranscriptBucket,
		Language:          tc.Language,
		TempDir:           tc.TempDir,
		BatchSize:         tc.BatchSize,
		Policy:            domain.JobPolicy{MaxAttempts: tc.MaxAttempts, MaxAge: tc.MaxAge},
		MaxSubmitAttempts: tc.MaxSubmits,
		DownloadTimeout:   tc.DownloadTimeout,
		UploadTimeout:     tc.UploadTimeout,
		SubmitTimeout:     tc.SubmitTimeout,
	})

	nc := cfg.Notifications
	notifications := usecase.NewNotificationScheduler(usecase.NotificationDeps{
		Subscriptions:    a.repo,
		Deliveries:       a.repo,
		Summarizer:       summ,
		Notifier:         notifier,
		Policies:         nc.Policies(),
		Logger:           logger.With("component", "notifications"),
		MaxMessageLength: nc.MaxMessageLength,
		Workers:          nc.Workers,
		SummaryTimeout:   cfg.Summarizer.Timeout,
		SendTimeout:      nc.SendTimeout,
	})

	loc := cfg.Scheduler.Location()
	a.scheduler = usecase.NewScheduler(usecase.SchedulerDeps{
		Driver:        scheduler.NewCronScheduler(loc, logger.With("component", "cron")),
		Locker:        locker,
		LockTTL:       cfg.Redis.LockTTL,
		Location:      loc,
		Poller:        poller,
		Transcription: transcription,
		Notifications: notifications,
		Specs: map[string]string{
			usecase.JobPoll:     cfg.Scheduler.PollCron,
			usecase.JobSubmit:   cfg.Scheduler.SubmitCron,
			usecase.JobComplete: cfg.Scheduler.CompleteCron,
			usecase.JobNotify:   cfg.Scheduler.NotifyCron,
		},
		Logger: logger.With("component", "scheduler"),
	})

	a.subscriptions = usecase.NewSubscriptionService(usecase.SubscriptionDeps{
		Subscriptions: a.repo,
		Podcasts:      a.repo,
		Inspector:     source,
		Logger:        logger.With("component", "subscriptions"),
	})
	return nil
}

// summarizer registers every configured provider and resolves the selected one.
// An unavailable provider falls back to transcript excerpts.
func (a *Application) summarizer() (ports.Summarizer, error) {
	sc := a.cfg.Summarizer

	registry := summarizer.NewRegistry()
	if sc.OpenAI.APIKey != "" {
		registry.Register(llm.NewOpenAISummarizer(sc.OpenAI, sc.MaxTranscriptChars, sc.Timeout))
	}
	if sc.Anthropic.APIKey != "" {
		registry.Register(llm.NewAnthropicSummarizer(sc.Anthropic, sc.MaxTranscriptChars, sc.Timeout))
	}
	if sc.Service.Endpoint != "" {
		registry.Register(ml.NewClient(sc.Service.Endpoint, sc.Service.APIKey, sc.MaxTranscriptChars, sc.Timeout))
	}
	registry.Register(llm.NewExcerptSummarizer(0))

	selected, err := registry.Resolve(sc.Provider)
	if err != nil {
		a.logger.Warn("summarizer unavailable, using excerpts",
			"provider", sc.Provider, "available", registry.Names(), "error", err)
		if selected, err = registry.Resolve(fallbackSummarizer); err != nil {
			return nil, err
		}
	}

	if sc.CacheSize <= 0 {
		return selected, nil
	}
	cached, err := llm.NewCachedSummarizer(selected, sc.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("summary cache: %w", err)
	}
	return cached, nil
}

func (a *Application) locker(ctx context.Context) (ports.Locker, error) {
	if a.cfg.Redis.URL == "" {
		return lock.NewLocalLocker(), nil
	}

	redisLocker, err := lock.NewRedisLocker(a.cfg.Redis.URL, a.logger.With("component", "lock"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, redisLocker)
	if err := redisLocker.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return redisLocker, nil
}

// Migrate creates missing tables.
func (a *Application) Migrate(ctx context.Context) error {
	return a.repo.Migrate(ctx)
}

// Subscriptions exposes subscription management to front ends.
func (a *Application) Subscriptions() *usecase.SubscriptionService {
	return a.subscriptions
}

// RunOnce executes a single job (or "all") and returns.
func (a *Application) RunOnce(ctx context.Context, job string) error {
	if err := a.Migrate(ctx); err != nil {
		return err
	}
	return a.scheduler.RunJob(ctx, job)
}

// Run starts the cron driven daemon and blocks until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Migrate(ctx); err != nil {
		return err
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("scheduler started", "jobs", usecase.Jobs(), "timezone", a.cfg.Scheduler.Location().String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}

// Close releases the store and the lock backend.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
