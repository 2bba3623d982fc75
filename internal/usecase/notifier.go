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

// NotificationDeps wires the notification scheduler.
type NotificationDeps struct {
	Subscriptions    ports.SubscriptionRepository
	Deliveries       ports.DeliveryRepository
	Summarizer       ports.Summarizer
	Notifier         ports.Notifier
	Policies         []domain.CadencePolicy
	Logger           *slog.Logger
	MaxMessageLength int
	Workers          int
	SummaryTimeout   time.Duration
	SendTimeout      time.Duration
}

// NotifyReport aggregates one scheduling run.
type NotifyReport struct {
	Subscriptions int
	Eligible      int
	Delivered     int
	Messages      int
	Errors        int
	// Skipped lists gated cadences whose current period already ran.
	Skipped []domain.Cadence
}

// NotificationScheduler delivers transcribed episodes to subscribers once
// per (episode, user) pair.
type NotificationScheduler struct {
	subscriptions  ports.SubscriptionRepository
	deliveries     ports.DeliveryRepository
	summarizer     ports.Summarizer
	notifier       ports.Notifier
	policies       []domain.CadencePolicy
	logger         *slog.Logger
	maxLength      int
	workers        int
	summaryTimeout time.Duration
	sendTimeout    time.Duration
}

// NewNotificationScheduler constructs the scheduler. Without policies the
// stock cadence table is used.
func NewNotificationScheduler(deps NotificationDeps) *NotificationScheduler {
	s := &NotificationScheduler{
		subscriptions:  deps.Subscriptions,
		deliveries:     deps.Deliveries,
		summarizer:     deps.Summarizer,
		notifier:       deps.Notifier,
		policies:       deps.Policies,
		logger:         deps.Logger,
		maxLength:      deps.MaxMessageLength,
		workers:        deps.Workers,
		summaryTimeout: deps.SummaryTimeout,
		sendTimeout:    deps.SendTimeout,
	}
	if len(s.policies) == 0 {
		s.policies = domain.DefaultPolicies()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.maxLength <= 0 {
		s.maxLength = DefaultMaxMessageLength
	}
	if s.workers <= 0 {
		s.workers = 1
	}
	return s
}

// notifyRun is the mutable state shared by the units of one run.
type notifyRun struct {
	now time.Time

	mu     sync.Mutex
	report NotifyReport
	errs   map[domain.Cadence]int
}

func (r *notifyRun) add(fn func(*NotifyReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.report)
}

func (r *notifyRun) fail(cadence domain.Cadence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Errors++
	r.errs[cadence]++
}

// Run evaluates every active subscription against now. now is read once by
// the caller and used for every eligibility query of the run.
func (s *NotificationScheduler) Run(ctx context.Context, now time.Time) (NotifyReport, error) {
	run := &notifyRun{now: now, errs: map[domain.Cadence]int{}}

	active, periods := s.openPolicies(ctx, run)

	subs, err := s.subscriptions.ActiveSubscriptions(ctx)
	if err != nil {
		return run.report, fmt.Errorf("load subscriptions: %w", err)
	}

	users, byUser := groupByUser(subs)

	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, user := range users {
		g.Go(func() error {
			s.notifyUser(ctx, run, byUser[user], active)
			return nil
		})
	}
	_ = g.Wait()

	for _, policy := range s.policies {
		period, ok := periods[policy.Cadence]
		if !ok || run.errs[policy.Cadence] > 0 || ctx.Err() != nil {
			continue
		}
		if err := s.deliveries.CompletePeriod(context.WithoutCancel(ctx), policy.Cadence, period, now); err != nil {
			run.fail(policy.Cadence)
			s.logger.Error("record digest period", "cadence", policy.Cadence, "period", period, "error", err)
		}
	}

	report := run.report
	s.logger.Info("notification run finished",
		"subscriptions", report.Subscriptions,
		"eligible", report.Eligible,
		"delivered", report.Delivered,
		"messages", report.Messages,
		"errors", report.Errors,
		"skipped", report.Skipped)
	return report, nil
}

// openPolicies returns the policies that run now and, for gated ones, the
// period they will close.
func (s *NotificationScheduler) openPolicies(ctx context.Context, run *notifyRun) (map[domain.Cadence]domain.CadencePolicy, map[domain.Cadence]string) {
	active := make(map[domain.Cadence]domain.CadencePolicy, len(s.policies))
	periods := map[domain.Cadence]string{}

	for _, policy := range s.policies {
		if policy.Gate == nil {
			active[policy.Cadence] = policy
			continue
		}

		period := policy.Gate.Period(run.now)
		done, err := s.deliveries.PeriodCompleted(ctx, policy.Cadence, period)
		if err != nil {
			run.fail(policy.Cadence)
			s.logger.Error("check digest period", "cadence", policy.Cadence, "period", period, "error", err)
			continue
		}
		if done {
			run.add(func(r *NotifyReport) { r.Skipped = append(r.Skipped, policy.Cadence) })
			continue
		}
		active[policy.Cadence] = policy
		periods[policy.Cadence] = period
	}
	return active, periods
}

func groupByUser(subs []domain.Subscription) ([]string, map[string][]domain.Subscription) {
	var users []string
	byUser := map[string][]domain.Subscription{}
	for _, sub := range subs {
		if _, ok := byUser[sub.Username]; !ok {
			users = append(users, sub.Username)
		}
		byUser[sub.Username] = append(byUser[sub.Username], sub)
	}
	return users, byUser
}

func (s *NotificationScheduler) notifyUser(ctx context.Context, run *notifyRun, subs []domain.Subscription, active map[domain.Cadence]domain.CadencePolicy) {
	batches := map[domain.Cadence][]domain.Subscription{}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		policy, ok := active[sub.Cadence]
		if !ok {
			continue
		}
		run.add(func(r *NotifyReport) { r.Subscriptions++ })

		if policy.Batch {
			batches[sub.Cadence] = append(batches[sub.Cadence], sub)
			continue
		}
		s.notifyEach(ctx, run, policy, sub)
	}

	for _, policy := range s.policies {
		if group := batches[policy.Cadence]; len(group) > 0 {
			s.notifyDigest(ctx, run, policy, group)
		}
	}
}

func (s *NotificationScheduler) eligible(ctx context.Context, run *notifyRun, policy domain.CadencePolicy, sub domain.Subscription) ([]domain.Episode, error) {
	return s.deliveries.EligibleEpisodes(ctx, domain.EligibilityQuery{
		Username:  sub.Username,
		PodcastID: sub.PodcastID,
		Since:     policy.Since(run.now),
		Until:     run.now,
	})
}

// notifyEach sends one summarized message per eligible episode.
func (s *NotificationScheduler) notifyEach(ctx context.Context, run *notifyRun, policy domain.CadencePolicy, sub domain.Subscription) {
	episodes, err := s.eligible(ctx, run, policy, sub)
	if err != nil {
		run.fail(policy.Cadence)
		s.logger.Error("eligible episodes", "user", sub.Username, "podcast", sub.PodcastID, "error", err)
		return
	}
	run.add(func(r *NotifyReport) { r.Eligible += len(episodes) })

	for _, ep := range episodes {
		if ctx.Err() != nil {
			return
		}

		reserved, err := s.deliveries.ReserveDelivery(ctx, sub.Username, []string{ep.ID}, run.now)
		if err != nil {
			run.fail(policy.Cadence)
			s.logger.Error("reserve delivery", "user", sub.Username, "episode", ep.ID, "error", err)
			continue
		}
		if len(reserved) == 0 {
			continue
		}

		summary, err := s.summarize(ctx, ep)
		if err != nil {
			run.fail(policy.Cadence)
			s.logger.Error("summarize episode", "episode", ep.ID, "error", err)
			s.release(ctx, sub.Username, reserved)
			continue
		}

		text := FormatEpisodeMessage(sub.PodcastTitle, ep, summary)
		s.deliver(ctx, run, policy.Cadence, sub.Recipient(), sub.Username, messageChunks(text, s.maxLength, reserved))
	}
}

// notifyDigest sends one message covering every eligible episode of the
// user's subscriptions with a batched cadence.
func (s *NotificationScheduler) notifyDigest(ctx context.Context, run *notifyRun, policy domain.CadencePolicy, subs []domain.Subscription) {
	username := subs[0].Username
	var (
		sections []DigestSection
		ids      []string
	)
	for _, sub := range subs {
		episodes, err := s.eligible(ctx, run, policy, sub)
		if err != nil {
			run.fail(policy.Cadence)
			s.logger.Error("eligible episodes", "user", username, "podcast", sub.PodcastID, "error", err)
			continue
		}
		if len(episodes) == 0 {
			continue
		}
		sections = append(sections, DigestSection{Podcast: sub.PodcastTitle, Episodes: episodes})
		for _, ep := range episodes {
			ids = append(ids, ep.ID)
		}
	}
	run.add(func(r *NotifyReport) { r.Eligible += len(ids) })
	if len(ids) == 0 {
		return
	}

	reserved, err := s.deliveries.ReserveDelivery(ctx, username, ids, run.now)
	if err != nil {
		run.fail(policy.Cadence)
		s.logger.Error("reserve digest", "user", username, "cadence", policy.Cadence, "error", err)
		return
	}
	if len(reserved) == 0 {
		return
	}

	chunks := SplitDigest(policy.Cadence, keepReserved(sections, reserved), s.maxLength)
	s.deliver(ctx, run, policy.Cadence, recipientOf(subs), username, chunks)
}

func keepReserved(sections []DigestSection, reserved []string) []DigestSection {
	keep := make(map[string]struct{}, len(reserved))
	for _, id := range reserved {
		keep[id] = struct{}{}
	}

	out := make([]DigestSection, 0, len(sections))
	for _, section := range sections {
		var episodes []domain.Episode
		for _, ep := range section.Episodes {
			if _, ok := keep[ep.ID]; ok {
				episodes = append(episodes, ep)
			}
		}
		if len(episodes) > 0 {
			out = append(out, DigestSection{Podcast: section.Podcast, Episodes: episodes})
		}
	}
	return out
}

func recipientOf(subs []domain.Subscription) domain.Recipient {
	for _, sub := range subs {
		if sub.ChatID != "" {
			return sub.Recipient()
		}
	}
	return subs[0].Recipient()
}

func (s *NotificationScheduler) summarize(ctx context.Context, ep domain.Episode) (string, error) {
	if s.summarizer == nil {
		return "", nil
	}
	sctx, cancel := withTimeout(ctx, s.summaryTimeout)
	defer cancel()
	return s.summarizer.Summarize(sctx, domain.SummaryRequest{
		EpisodeID:   ep.ID,
		Title:       ep.Title,
		PublishedAt: ep.PublishedAt,
		Transcript:  ep.Transcript,
	})
}

// messageChunks splits a single-episode message; its first chunk carries the episode.
func messageChunks(text string, limit int, ids []string) []Chunk {
	parts := SplitMessage(text, limit)
	chunks := make([]Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = Chunk{Text: part}
	}
	chunks[0].EpisodeIDs = ids
	return chunks
}

// deliver sends chunks in order and settles the reservation per chunk:
// episodes of sent chunks are confirmed, the rest released for a later run.
func (s *NotificationScheduler) deliver(ctx context.Context, run *notifyRun, cadence domain.Cadence, to domain.Recipient, username string, chunks []Chunk) {
	sent, err := s.sendChunks(ctx, to, chunks)

	var confirmed, unsent []string
	for i, chunk := range chunks {
		if i < sent {
			confirmed = append(confirmed, chunk.EpisodeIDs...)
		} else {
			unsent = append(unsent, chunk.EpisodeIDs...)
		}
	}
	if len(unsent) > 0 {
		s.release(ctx, username, unsent)
	}

	if sent == 0 {
		run.fail(cadence)
		s.logger.Error("delivery failed", "user", username, "cadence", cadence, "episodes", len(unsent), "error", err)
		return
	}
	if err != nil {
		run.fail(cadence)
		s.logger.Warn("partial delivery", "user", username, "cadence", cadence,
			"sent", sent, "chunks", len(chunks), "released", len(unsent), "error", err)
	}

	if err := s.deliveries.ConfirmDelivery(context.WithoutCancel(ctx), username, confirmed, run.now); err != nil {
		run.fail(cadence)
		s.logger.Error("confirm delivery", "user", username, "error", err)
	}
	run.add(func(r *NotifyReport) {
		r.Delivered += len(confirmed)
		r.Messages += sent
	})
}

func (s *NotificationScheduler) sendChunks(ctx context.Context, to domain.Recipient, chunks []Chunk) (int, error) {
	for i, chunk := range chunks {
		sctx, cancel := withTimeout(ctx, s.sendTimeout)
		err := s.notifier.Send(sctx, to, chunk.Text)
		cancel()
		if err != nil {
			return i, fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return len(chunks), nil
}

func (s *NotificationScheduler) release(ctx context.Context, username string, ids []string) {
	if err := s.deliveries.ReleaseDelivery(context.WithoutCancel(ctx), username, ids); err != nil {
		s.logger.Error("release delivery", "user", username, "error", err)
	}
}
