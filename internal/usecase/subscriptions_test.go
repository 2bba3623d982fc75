package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"PodcastNotifier/internal/domain"
)

func newTestSubscriptionService(store *memStore) *SubscriptionService {
	return NewSubscriptionService(SubscriptionDeps{
		Subscriptions: store,
		Podcasts:      store,
		Inspector:     &fakeSource{},
		Now:           func() time.Time { return runNow },
	})
}

func mustResult(t *testing.T, res Result, err error, ok bool, message string) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK != ok || res.Message != message {
		t.Fatalf("expected (%v, %q), got (%v, %q)", ok, message, res.OK, res.Message)
	}
}

func TestSubscribeTwice(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := seedPodcast(t, store, "Show")
	svc := newTestSubscriptionService(store)
	ctx := context.Background()

	res, err := svc.Subscribe(ctx, "@alice", "42", p.ID, "immediate")
	mustResult(t, res, err, true, MsgSubscribed)

	res, err = svc.Subscribe(ctx, "alice", "", p.ID, "daily")
	mustResult(t, res, err, false, MsgAlreadySubscribed)

	if store.subscriptionCount() != 1 {
		t.Fatalf("expected one subscription row, got %d", store.subscriptionCount())
	}
	sub, _ := store.Subscription(ctx, "alice", p.ID)
	if sub.Cadence != domain.CadenceImmediate || sub.ChatID != "42" {
		t.Fatalf("already-active subscription must not change: %+v", sub)
	}
}

func TestUnsubscribeAndReactivate(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := seedPodcast(t, store, "Show")
	svc := newTestSubscriptionService(store)
	ctx := context.Background()

	res, err := svc.Unsubscribe(ctx, "alice", p.ID)
	mustResult(t, res, err, false, MsgNotSubscribed)

	res, err = svc.Subscribe(ctx, "alice", "", p.ID, "weekly")
	mustResult(t, res, err, true, MsgSubscribed)

	res, err = svc.Unsubscribe(ctx, "alice", p.ID)
	mustResult(t, res, err, true, MsgUnsubscribed)

	res, err = svc.Unsubscribe(ctx, "alice", p.ID)
	mustResult(t, res, err, false, MsgAlreadyUnsubscribed)

	res, err = svc.Subscribe(ctx, "alice", "", p.ID, "daily")
	mustResult(t, res, err, true, MsgReactivated)

	sub, _ := store.Subscription(ctx, "alice", p.ID)
	if !sub.Active || sub.Cadence != domain.CadenceDaily {
		t.Fatalf("reactivation must overwrite cadence: %+v", sub)
	}
	if store.subscriptionCount() != 1 {
		t.Fatalf("reactivation must reuse the row")
	}
}

func TestUpdatePreference(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := seedPodcast(t, store, "Show")
	svc := newTestSubscriptionService(store)
	ctx := context.Background()

	res, err := svc.UpdatePreference(ctx, "alice", p.ID, "daily")
	mustResult(t, res, err, false, MsgSubscriptionMissing)

	_, _ = svc.Subscribe(ctx, "alice", "", p.ID, "immediate")
	_, _ = svc.Unsubscribe(ctx, "alice", p.ID)

	res, err = svc.UpdatePreference(ctx, "alice", p.ID, "Weekly")
	mustResult(t, res, err, true, MsgPreferencesUpdated)

	sub, _ := store.Subscription(ctx, "alice", p.ID)
	if sub.Active || sub.Cadence != domain.CadenceWeekly {
		t.Fatalf("inactive subscription must keep its state and take the cadence: %+v", sub)
	}

	res, err = svc.UpdatePreference(ctx, "alice", p.ID, "hourly")
	mustResult(t, res, err, false, MsgUnknownCadence)
}

func TestSubscribeValidation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := seedPodcast(t, store, "Show")
	svc := newTestSubscriptionService(store)
	ctx := context.Background()

	res, err := svc.Subscribe(ctx, " @ ", "", p.ID, "daily")
	mustResult(t, res, err, false, MsgUsernameRequired)

	res, err = svc.Subscribe(ctx, "alice", "", p.ID, "monthly")
	mustResult(t, res, err, false, MsgUnknownCadence)

	res, err = svc.Subscribe(ctx, "alice", "", 999, "daily")
	mustResult(t, res, err, false, MsgPodcastMissing)

	if store.subscriptionCount() != 0 {
		t.Fatalf("invalid requests must not create rows")
	}
}

func TestSubscribeFeedAndCatalog(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestSubscriptionService(store)
	ctx := context.Background()

	res, err := svc.SubscribeFeed(ctx, "alice", "7", "https://feeds.example.com/new.xml", "daily")
	mustResult(t, res, err, true, MsgSubscribed)

	res, err = svc.SubscribeFeed(ctx, "alice", "7", "not a url", "daily")
	mustResult(t, res, err, false, MsgInvalidFeed)

	podcasts, err := svc.ListPodcasts(ctx)
	if err != nil || len(podcasts) != 1 {
		t.Fatalf("expected one podcast, got %d (%v)", len(podcasts), err)
	}
	if podcasts[0].Title != "Title of https://feeds.example.com/new.xml" || podcasts[0].Owner != "alice" {
		t.Fatalf("unexpected podcast %+v", podcasts[0])
	}

	again, created, err := svc.AddPodcast(ctx, "https://feeds.example.com/new.xml", "Other", "bob")
	if err != nil || created || again.ID != podcasts[0].ID {
		t.Fatalf("known feeds must not be added twice: %+v created=%v err=%v", again, created, err)
	}

	if _, _, err := svc.AddPodcast(ctx, "ftp://feeds.example.com/x", "", ""); !errors.Is(err, domain.ErrInvalidFeedURL) {
		t.Fatalf("expected ErrInvalidFeedURL, got %v", err)
	}

	other := seedPodcast(t, store, "Other")
	_, _ = svc.Subscribe(ctx, "alice", "", other.ID, "weekly")
	_, _ = svc.Unsubscribe(ctx, "alice", other.ID)

	subs, err := svc.ListSubscriptions(ctx, "@alice")
	if err != nil {
		t.Fatalf("ListSubscriptions error: %v", err)
	}
	if len(subs) != 1 || subs[0].PodcastID != podcasts[0].ID {
		t.Fatalf("only active subscriptions are listed: %+v", subs)
	}
}
