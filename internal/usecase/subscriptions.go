package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/ports"
)

// Messages returned to users. Expected outcomes are results, not errors.
const (
	MsgSubscribed          = "Successfully subscribed!"
	MsgReactivated         = "Subscription reactivated!"
	MsgAlreadySubscribed   = "You're already subscribed to this podcast!"
	MsgUnsubscribed        = "Successfully unsubscribed!"
	MsgNotSubscribed       = "You're not subscribed to this podcast."
	MsgAlreadyUnsubscribed = "You're already unsubscribed from this podcast."
	MsgPreferencesUpdated  = "Preferences updated!"
	MsgSubscriptionMissing = "Subscription not found."
	MsgPodcastMissing      = "Podcast not found."
	MsgUsernameRequired    = "A Telegram username is required."
	MsgUnknownCadence      = "Unknown notification preference. Choose immediate, daily or weekly."
	MsgInvalidFeed         = "That does not look like a podcast feed URL."
)

// Result is the (success, message) pair shown to the user.
type Result struct {
	OK      bool
	Message string
}

// SubscriptionDeps wires the subscription service.
type SubscriptionDeps struct {
	Subscriptions ports.SubscriptionRepository
	Podcasts      ports.PodcastRepository
	// Inspector fills in missing podcast titles. Optional.
	Inspector ports.FeedInspector
	Logger    *slog.Logger
	Now       func() time.Time
}

// SubscriptionService implements subscribe, unsubscribe and preference updates.
type SubscriptionService struct {
	subs      ports.SubscriptionRepository
	podcasts  ports.PodcastRepository
	inspector ports.FeedInspector
	logger    *slog.Logger
	now       func() time.Time
}

// NewSubscriptionService constructs the service.
func NewSubscriptionService(deps SubscriptionDeps) *SubscriptionService {
	s := &SubscriptionService{
		subs:      deps.Subscriptions,
		podcasts:  deps.Podcasts,
		inspector: deps.Inspector,
		logger:    deps.Logger,
		now:       deps.Now,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func normalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// Subscribe creates the subscription, reactivates an inactive one with the new
// cadence, or reports that an active one already exists.
func (s *SubscriptionService) Subscribe(ctx context.Context, username, chatID string, podcastID int64, cadence string) (Result, error) {
	username = normalizeUsername(username)
	if username == "" {
		return Result{Message: MsgUsernameRequired}, nil
	}
	c, err := domain.ParseCadence(cadence)
	if err != nil {
		return Result{Message: MsgUnknownCadence}, nil
	}

	if _, err := s.podcasts.Podcast(ctx, podcastID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Result{Message: MsgPodcastMissing}, nil
		}
		return Result{}, fmt.Errorf("load podcast: %w", err)
	}

	now := s.now()
	existing, err := s.subs.Subscription(ctx, username, podcastID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		err = s.subs.CreateSubscription(ctx, domain.Subscription{
			Username:     username,
			ChatID:       chatID,
			PodcastID:    podcastID,
			Active:       true,
			Cadence:      c,
			SubscribedAt: now,
			UpdatedAt:    now,
		})
		if errors.Is(err, domain.ErrDuplicate) {
			// a concurrent subscribe created the row first
			return Result{Message: MsgAlreadySubscribed}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("create subscription: %w", err)
		}
		s.logger.Info("subscribed", "user", username, "podcast", podcastID, "cadence", c)
		return Result{OK: true, Message: MsgSubscribed}, nil
	case err != nil:
		return Result{}, fmt.Errorf("load subscription: %w", err)
	}

	if existing.Active {
		return Result{Message: MsgAlreadySubscribed}, nil
	}

	existing.Active = true
	existing.Cadence = c
	existing.ChatID = chatID
	existing.UpdatedAt = now
	if err := s.subs.UpdateSubscription(ctx, existing); err != nil {
		return Result{}, fmt.Errorf("reactivate subscription: %w", err)
	}
	s.logger.Info("subscription reactivated", "user", username, "podcast", podcastID, "cadence", c)
	return Result{OK: true, Message: MsgReactivated}, nil
}

// Unsubscribe deactivates an active subscription.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, username string, podcastID int64) (Result, error) {
	username = normalizeUsername(username)
	if username == "" {
		return Result{Message: MsgUsernameRequired}, nil
	}

	existing, err := s.subs.Subscription(ctx, username, podcastID)
	if errors.Is(err, domain.ErrNotFound) {
		return Result{Message: MsgNotSubscribed}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load subscription: %w", err)
	}
	if !existing.Active {
		return Result{Message: MsgAlreadyUnsubscribed}, nil
	}

	existing.Active = false
	existing.UpdatedAt = s.now()
	if err := s.subs.UpdateSubscription(ctx, existing); err != nil {
		return Result{}, fmt.Errorf("deactivate subscription: %w", err)
	}
	s.logger.Info("unsubscribed", "user", username, "podcast", podcastID)
	return Result{OK: true, Message: MsgUnsubscribed}, nil
}

// UpdatePreference changes the cadence of an existing subscription, active or not.
func (s *SubscriptionService) UpdatePreference(ctx context.Context, username string, podcastID int64, cadence string) (Result, error) {
	username = normalizeUsername(username)
	if username == "" {
		return Result{Message: MsgUsernameRequired}, nil
	}
	c, err := domain.ParseCadence(cadence)
	if err != nil {
		return Result{Message: MsgUnknownCadence}, nil
	}

	existing, err := s.subs.Subscription(ctx, username, podcastID)
	if errors.Is(err, domain.ErrNotFound) {
		return Result{Message: MsgSubscriptionMissing}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load subscription: %w", err)
	}

	existing.Cadence = c
	existing.UpdatedAt = s.now()
	if err := s.subs.UpdateSubscription(ctx, existing); err != nil {
		return Result{}, fmt.Errorf("update subscription: %w", err)
	}
	s.logger.Info("preference updated", "user", username, "podcast", podcastID, "cadence", c)
	return Result{OK: true, Message: MsgPreferencesUpdated}, nil
}

// SubscribeFeed registers the feed if needed and subscribes the user to it.
func (s *SubscriptionService) SubscribeFeed(ctx context.Context, username, chatID, feedURL, cadence string) (Result, error) {
	podcast, _, err := s.AddPodcast(ctx, feedURL, "", normalizeUsername(username))
	if errors.Is(err, domain.ErrInvalidFeedURL) {
		return Result{Message: MsgInvalidFeed}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return s.Subscribe(ctx, username, chatID, podcast.ID, cadence)
}

// ListSubscriptions returns the active subscriptions of a user.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, username string) ([]domain.Subscription, error) {
	all, err := s.subs.UserSubscriptions(ctx, normalizeUsername(username))
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	active := all[:0]
	for _, sub := range all {
		if sub.Active {
			active = append(active, sub)
		}
	}
	return active, nil
}

// AddPodcast registers a feed in the catalog. created is false when the feed
// was already known.
func (s *SubscriptionService) AddPodcast(ctx context.Context, feedURL, title, owner string) (podcast domain.Podcast, created bool, err error) {
	feedURL = strings.TrimSpace(feedURL)
	u, err := url.Parse(feedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.Podcast{}, false, fmt.Errorf("%w: %q", domain.ErrInvalidFeedURL, feedURL)
	}

	if existing, err := s.podcasts.PodcastByFeed(ctx, feedURL); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Podcast{}, false, fmt.Errorf("lookup podcast: %w", err)
	}

	title = strings.TrimSpace(title)
	if title == "" && s.inspector != nil {
		if t, err := s.inspector.Title(ctx, feedURL); err != nil {
			s.logger.Warn("read feed title", "feed", feedURL, "error", err)
		} else {
			title = t
		}
	}
	if title == "" {
		title = u.Host
	}

	now := s.now()
	podcast, created, err = s.podcasts.AddPodcast(ctx, domain.Podcast{
		Title:     title,
		FeedURL:   feedURL,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Podcast{}, false, fmt.Errorf("add podcast: %w", err)
	}
	if created {
		s.logger.Info("podcast added", "podcast", podcast.ID, "feed", feedURL, "title", title)
	}
	return podcast, created, nil
}

// ListPodcasts returns the catalog.
func (s *SubscriptionService) ListPodcasts(ctx context.Context) ([]domain.Podcast, error) {
	podcasts, err := s.podcasts.ListPodcasts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list podcasts: %w", err)
	}
	return podcasts, nil
}
