package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PodcastNotifier/internal/config"
	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/usecase"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Wired Show</title>
    <item>
      <title>Pilot</title>
      <pubDate>Thu, 15 Oct 2026 09:00:00 GMT</pubDate>
      <enclosure url="https://cdn.example.com/pilot.mp3" type="audio/mpeg" length="1"/>
    </item>
  </channel>
</rss>`

func newTestApp(t *testing.T) *Application {
	t.Helper()

	t.Setenv("PODCAST_NOTIFIER_CONFIG", "")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", ":memory:")
	t.Setenv("SUMMARIZER_PROVIDER", "missing")
	t.Setenv("REDIS_URL", "")
	t.Setenv("AWS_REGION", "us-east-1")

	cfg := config.Load()
	a, err := New(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApplicationManagesSubscriptions(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if err := a.Migrate(ctx); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}

	svc := a.Subscriptions()
	podcast, created, err := svc.AddPodcast(ctx, "https://feeds.example.com/show.xml", "Show", "")
	if err != nil || !created {
		t.Fatalf("AddPodcast: created=%v err=%v", created, err)
	}

	res, err := svc.Subscribe(ctx, "@alice", "42", podcast.ID, "daily")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if !res.OK || res.Message != usecase.MsgSubscribed {
		t.Fatalf("unexpected result %+v", res)
	}

	subs, err := svc.ListSubscriptions(ctx, "alice")
	if err != nil {
		t.Fatalf("ListSubscriptions error: %v", err)
	}
	if len(subs) != 1 || subs[0].PodcastTitle != "Show" {
		t.Fatalf("unexpected subscriptions %+v", subs)
	}
}

func TestApplicationRunsJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testFeed))
	}))
	t.Cleanup(server.Close)

	a := newTestApp(t)
	ctx := context.Background()

	if err := a.Migrate(ctx); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if _, _, err := a.Subscriptions().AddPodcast(ctx, server.URL+"/feed.xml", "", ""); err != nil {
		t.Fatalf("AddPodcast error: %v", err)
	}

	if err := a.RunOnce(ctx, usecase.JobPoll); err != nil {
		t.Fatalf("poll error: %v", err)
	}
	if err := a.RunOnce(ctx, usecase.JobNotify); err != nil {
		t.Fatalf("notify error: %v", err)
	}
	if err := a.RunOnce(ctx, "bogus"); err == nil {
		t.Fatalf("expected unknown job error")
	}
}

func TestApplicationRunStopsWithContext(t *testing.T) {
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.AfterFunc(200*time.Millisecond, cancel)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
