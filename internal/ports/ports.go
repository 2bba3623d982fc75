package ports

import (
	"context"
	"io"
	"time"

	"PodcastNotifier/internal/domain"
)

// FeedRequest bounds a single feed fetch. Since wins over MaxEpisodes when set.
type FeedRequest struct {
	URL         string
	Since       time.Time
	MaxEpisodes int
}

// FeedSource pulls and normalizes episodes from a podcast feed.
type FeedSource interface {
	Fetch(ctx context.Context, req FeedRequest) ([]domain.Episode, error)
}

// FeedInspector reads feed-level metadata.
type FeedInspector interface {
	Title(ctx context.Context, feedURL string) (string, error)
}

// PodcastRepository persists the podcast catalog.
type PodcastRepository interface {
	AddPodcast(ctx context.Context, podcast domain.Podcast) (domain.Podcast, bool, error)
	Podcast(ctx context.Context, id int64) (domain.Podcast, error)
	PodcastByFeed(ctx context.Context, feedURL string) (domain.Podcast, error)
	ListPodcasts(ctx context.Context) ([]domain.Podcast, error)
}

// EpisodeRepository stores episodes and their transcription state.
type EpisodeRepository interface {
	InsertEpisodes(ctx context.Context, podcastID int64, episodes []domain.Episode) (int, error)
	EpisodesAwaitingTranscription(ctx context.Context, limit int) ([]domain.Episode, error)
	RecordSubmitFailure(ctx context.Context, episodeID, reason string, skip bool, at time.Time) error
	EpisodeByAudioURL(ctx context.Context, audioURL string) (domain.Episode, error)
}

// TranscriptionJobRepository tracks submitted speech-to-text jobs.
type TranscriptionJobRepository interface {
	CreateJob(ctx context.Context, job domain.TranscriptionJob) error
	OpenJobs(ctx context.Context) ([]domain.TranscriptionJob, error)
	CompleteJob(ctx context.Context, job domain.TranscriptionJob, episodeID, transcript string, at time.Time) error
	RecordJobAttempt(ctx context.Context, jobName string, status domain.JobStatus, lastError string, at time.Time) error
}

// SubscriptionRepository stores (username, podcast) subscriptions.
type SubscriptionRepository interface {
	Subscription(ctx context.Context, username string, podcastID int64) (domain.Subscription, error)
	CreateSubscription(ctx context.Context, sub domain.Subscription) error
	UpdateSubscription(ctx context.Context, sub domain.Subscription) error
	ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	UserSubscriptions(ctx context.Context, username string) ([]domain.Subscription, error)
}

// DeliveryRepository owns the delivery idempotency records.
type DeliveryRepository interface {
	EligibleEpisodes(ctx context.Context, q domain.EligibilityQuery) ([]domain.Episode, error)
	ReserveDelivery(ctx context.Context, username string, episodeIDs []string, at time.Time) ([]string, error)
	ConfirmDelivery(ctx context.Context, username string, episodeIDs []string, at time.Time) error
	ReleaseDelivery(ctx context.Context, username string, episodeIDs []string) error
	PeriodCompleted(ctx context.Context, cadence domain.Cadence, period string) (bool, error)
	CompletePeriod(ctx context.Context, cadence domain.Cadence, period string, at time.Time) error
}

// ObjectStore keeps uploaded audio and provider output.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body io.ReadSeeker, contentType string) (string, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// Transcriber submits asynchronous speech-to-text jobs and decodes their output.
type Transcriber interface {
	Submit(ctx context.Context, req domain.TranscriptionRequest) error
	Transcript(output []byte) (string, error)
}

// AudioDownloader streams remote audio into dst.
type AudioDownloader interface {
	Download(ctx context.Context, audioURL string, dst io.Writer) (int64, error)
}

// Summarizer turns a transcript into a short text.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, req domain.SummaryRequest) (string, error)
}

// Notifier delivers one message to a user.
type Notifier interface {
	Send(ctx context.Context, to domain.Recipient, text string) error
}

// Locker prevents overlapping runs of the same job.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Register(name, spec string, job func(time.Time)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
