package domain

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Podcast is a feed users can subscribe to. FeedURL is unique.
type Podcast struct {
	ID        int64
	Title     string
	FeedURL   string
	Owner     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Episode is a single feed entry. ID is derived from the entry content so that
// re-polling an unchanged feed yields the same identity.
type Episode struct {
	ID             string
	PodcastID      int64
	Title          string
	PublishedAt    time.Time
	Summary        string
	Link           string
	AudioURL       string
	TranscriptLink string
	TranscriptURL  string
	Transcript     string
	CreatedAt      time.Time

	// SubmitAttempts counts failed transcription submissions. A skipped
	// episode is never offered for submission again.
	SubmitAttempts int
	SubmitError    string
	SubmitSkipped  bool
}

// HasTranscript reports whether a completed transcription was attached.
func (e Episode) HasTranscript() bool {
	return e.Transcript != ""
}

// EpisodeID fingerprints a feed entry by its title and raw published string.
func EpisodeID(title, published string) string {
	sum := md5.Sum([]byte(title + "-" + published))
	return hex.EncodeToString(sum[:])
}

// ProcessedEpisode marks an episode as handed to the delivery channel for a user.
type ProcessedEpisode struct {
	EpisodeID   string
	Username    string
	ProcessedAt time.Time
	SummarySent bool
}

// EligibilityQuery selects transcribed, undelivered episodes of one podcast for one user.
type EligibilityQuery struct {
	Username  string
	PodcastID int64
	Since     time.Time
	Until     time.Time
}

// SummaryRequest carries the inputs of a single episode summary.
type SummaryRequest struct {
	EpisodeID   string
	Title       string
	PublishedAt time.Time
	Transcript  string
}
