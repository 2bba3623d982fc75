package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/ports"
)

// PollerDeps wires the feed poller.
type PollerDeps struct {
	Podcasts    ports.PodcastRepository
	Episodes    ports.EpisodeRepository
	Source      ports.FeedSource
	Logger      *slog.Logger
	MaxEpisodes int
	Lookback    time.Duration
	Workers     int
	Timeout     time.Duration
}

// PollReport aggregates one polling run.
type PollReport struct {
	Podcasts int
	Fetched  int
	Inserted int
	Failed   int
}

// FeedPoller ingests new episodes of every known podcast.
type FeedPoller struct {
	podcasts    ports.PodcastRepository
	episodes    ports.EpisodeRepository
	source      ports.FeedSource
	logger      *slog.Logger
	maxEpisodes int
	lookback    time.Duration
	workers     int
	timeout     time.Duration
}

// NewFeedPoller constructs the poller.
func NewFeedPoller(deps PollerDeps) *FeedPoller {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 1
	}
	return &FeedPoller{
		podcasts:    deps.Podcasts,
		episodes:    deps.Episodes,
		source:      deps.Source,
		logger:      logger,
		maxEpisodes: deps.MaxEpisodes,
		lookback:    deps.Lookback,
		workers:     workers,
		timeout:     deps.Timeout,
	}
}

// PollAll polls every podcast. A failing feed is logged and counted, never
// fatal to the run; only failing to list podcasts returns an error.
func (p *FeedPoller) PollAll(ctx context.Context, now time.Time) (PollReport, error) {
	podcasts, err := p.podcasts.ListPodcasts(ctx)
	if err != nil {
		return PollReport{}, fmt.Errorf("list podcasts: %w", err)
	}

	var (
		mu     sync.Mutex
		report = PollReport{Podcasts: len(podcasts)}
		g      errgroup.Group
	)
	g.SetLimit(p.workers)

	for _, podcast := range podcasts {
		g.Go(func() error {
			fetched, inserted, err := p.PollPodcast(ctx, podcast, now)

			mu.Lock()
			defer mu.Unlock()
			report.Fetched += fetched
			report.Inserted += inserted
			if err != nil {
				report.Failed++
				p.logger.Error("poll failed", "podcast", podcast.ID, "feed", podcast.FeedURL, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("poll finished",
		"podcasts", report.Podcasts,
		"fetched", report.Fetched,
		"inserted", report.Inserted,
		"failed", report.Failed)
	return report, nil
}

// PollPodcast fetches one feed and stores episodes not seen before.
func (p *FeedPoller) PollPodcast(ctx context.Context, podcast domain.Podcast, now time.Time) (fetched, inserted int, err error) {
	req := ports.FeedRequest{URL: podcast.FeedURL, MaxEpisodes: p.maxEpisodes}
	if p.lookback > 0 {
		req.Since = now.Add(-p.lookback)
	}

	fetchCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	episodes, err := p.source.Fetch(fetchCtx, req)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch feed: %w", err)
	}
	if len(episodes) == 0 {
		return 0, 0, nil
	}

	inserted, err = p.episodes.InsertEpisodes(ctx, podcast.ID, episodes)
	if err != nil {
		return len(episodes), 0, fmt.Errorf("store episodes: %w", err)
	}

	p.logger.Debug("podcast polled", "podcast", podcast.ID, "fetched", len(episodes), "inserted", inserted)
	return len(episodes), inserted, nil
}
