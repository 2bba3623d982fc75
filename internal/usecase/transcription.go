package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/ports"
)

// TranscriptionDeps wires the transcription job manager.
type TranscriptionDeps struct {
	Episodes    ports.EpisodeRepository
	Jobs        ports.TranscriptionJobRepository
	Store       ports.ObjectStore
	Transcriber ports.Transcriber
	Downloader  ports.AudioDownloader
	// ContentType maps a media format to the MIME type stored with the upload.
	ContentType func(format string) string
	Logger      *slog.Logger

	AudioBucket      string
	TranscriptBucket string
	Language         string
	TempDir          string
	BatchSize        int
	Policy           domain.JobPolicy

	// MaxSubmitAttempts skips an episode after that many failed submissions.
	// Zero retries forever; unsupported formats are skipped at once.
	MaxSubmitAttempts int

	DownloadTimeout time.Duration
	UploadTimeout   time.Duration
	SubmitTimeout   time.Duration

	NewJobName func() string
}

// SubmitReport aggregates one submission run.
type SubmitReport struct {
	Candidates  int
	Submitted   int
	Unsupported int
	Failed      int
	// Skipped counts episodes taken out of the queue by this run.
	Skipped     int
}

// CompleteReport aggregates one completion run.
type CompleteReport struct {
	Checked   int
	Completed int
	Pending   int
	Failed    int
	Errors    int
}

// TranscriptionManager moves episodes from audio to transcript.
type TranscriptionManager struct {
	episodes    ports.EpisodeRepository
	jobs        ports.TranscriptionJobRepository
	store       ports.ObjectStore
	transcriber ports.Transcriber
	downloader  ports.AudioDownloader
	contentType func(string) string
	logger      *slog.Logger

	audioBucket      string
	transcriptBucket string
	language         string
	tempDir          string
	batchSize        int
	policy           domain.JobPolicy
	maxSubmits       int

	downloadTimeout time.Duration
	uploadTimeout   time.Duration
	submitTimeout   time.Duration

	newJobName func() string
}

// NewTranscriptionManager constructs the manager.
func NewTranscriptionManager(deps TranscriptionDeps) *TranscriptionManager {
	m := &TranscriptionManager{
		episodes:         deps.Episodes,
		jobs:             deps.Jobs,
		store:            deps.Store,
		transcriber:      deps.Transcriber,
		downloader:       deps.Downloader,
		contentType:      deps.ContentType,
		logger:           deps.Logger,
		audioBucket:      deps.AudioBucket,
		transcriptBucket: deps.TranscriptBucket,
		language:         deps.Language,
		tempDir:          deps.TempDir,
		batchSize:        deps.BatchSize,
		policy:           deps.Policy,
		maxSubmits:       deps.MaxSubmitAttempts,
		downloadTimeout:  deps.DownloadTimeout,
		uploadTimeout:    deps.UploadTimeout,
		submitTimeout:    deps.SubmitTimeout,
		newJobName:       deps.NewJobName,
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	if m.contentType == nil {
		m.contentType = func(string) string { return "application/octet-stream" }
	}
	if m.language == "" {
		m.language = "en-US"
	}
	if m.newJobName == nil {
		m.newJobName = func() string { return "transcription-" + uuid.NewString() }
	}
	return m
}

func (m *TranscriptionManager) checkBuckets() error {
	if m.audioBucket == "" || m.transcriptBucket == "" {
		return domain.ErrMissingBucket
	}
	return nil
}

// SubmitPending uploads audio of untranscribed episodes and starts jobs.
// Per-episode failures are counted; a missing bucket aborts the run.
func (m *TranscriptionManager) SubmitPending(ctx context.Context, now time.Time) (SubmitReport, error) {
	if err := m.checkBuckets(); err != nil {
		return SubmitReport{}, err
	}

	episodes, err := m.episodes.EpisodesAwaitingTranscription(ctx, m.batchSize)
	if err != nil {
		return SubmitReport{}, fmt.Errorf("load pending episodes: %w", err)
	}

	report := SubmitReport{Candidates: len(episodes)}
	for _, ep := range episodes {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		job, err := m.SubmitEpisode(ctx, ep, now)
		switch {
		case errors.Is(err, domain.ErrUnsupportedFormat):
			report.Unsupported++
			m.logger.Warn("skipping episode", "episode", ep.ID, "audio", ep.AudioURL, "error", err)
			if m.recordSubmitFailure(ctx, ep, err, true, now) {
				report.Skipped++
			}
		case err != nil:
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			m.logger.Error("submit failed", "episode", ep.ID, "audio", ep.AudioURL, "attempt", ep.SubmitAttempts+1, "error", err)
			skip := m.maxSubmits > 0 && ep.SubmitAttempts+1 >= m.maxSubmits
			if m.recordSubmitFailure(ctx, ep, err, skip, now) && skip {
				report.Skipped++
				m.logger.Warn("giving up on episode", "episode", ep.ID, "attempts", ep.SubmitAttempts+1)
			}
		default:
			report.Submitted++
			m.logger.Info("transcription started", "episode", ep.ID, "job", job.Name)
		}
	}

	m.logger.Info("submission finished",
		"candidates", report.Candidates,
		"submitted", report.Submitted,
		"unsupported", report.Unsupported,
		"failed", report.Failed,
		"skipped", report.Skipped)
	return report, nil
}

// recordSubmitFailure stores the failure on the episode and reports whether it was saved.
func (m *TranscriptionManager) recordSubmitFailure(ctx context.Context, ep domain.Episode, cause error, skip bool, now time.Time) bool {
	if err := m.episodes.RecordSubmitFailure(ctx, ep.ID, cause.Error(), skip, now); err != nil {
		m.logger.Error("record submit failure", "episode", ep.ID, "error", err)
		return false
	}
	return true
}

// SubmitEpisode downloads, uploads and submits one episode. The temporary
// audio file is removed on every return path.
func (m *TranscriptionManager) SubmitEpisode(ctx context.Context, ep domain.Episode, now time.Time) (domain.TranscriptionJob, error) {
	if ep.AudioURL == "" {
		return domain.TranscriptionJob{}, fmt.Errorf("episode %s has no audio", ep.ID)
	}
	format := domain.MediaFormat(ep.AudioURL)
	if !domain.SupportedFormat(format) {
		return domain.TranscriptionJob{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}

	tmp, err := os.CreateTemp(m.tempDir, "episode-*."+format)
	if err != nil {
		return domain.TranscriptionJob{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("remove temp file", "path", tmp.Name(), "error", err)
		}
	}()

	dctx, cancel := withTimeout(ctx, m.downloadTimeout)
	size, err := m.downloader.Download(dctx, ep.AudioURL, tmp)
	cancel()
	if err != nil {
		return domain.TranscriptionJob{}, fmt.Errorf("download: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return domain.TranscriptionJob{}, fmt.Errorf("rewind temp file: %w", err)
	}

	mediaKey := fmt.Sprintf("episodes/%s.%s", ep.ID, format)
	uctx, cancel := withTimeout(ctx, m.uploadTimeout)
	mediaURI, err := m.store.Put(uctx, m.audioBucket, mediaKey, tmp, m.contentType(format))
	cancel()
	if err != nil {
		return domain.TranscriptionJob{}, fmt.Errorf("upload: %w", err)
	}

	outputKey := fmt.Sprintf("transcripts/%s.json", ep.ID)
	job := domain.TranscriptionJob{
		Name:          m.newJobName(),
		AudioURL:      ep.AudioURL,
		MediaURI:      mediaURI,
		TranscriptURI: domain.ObjectURI(m.transcriptBucket, outputKey),
		Status:        domain.JobStarted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sctx, cancel := withTimeout(ctx, m.submitTimeout)
	err = m.transcriber.Submit(sctx, domain.TranscriptionRequest{
		JobName:      job.Name,
		MediaURI:     mediaURI,
		Format:       format,
		Language:     m.language,
		OutputBucket: m.transcriptBucket,
		OutputKey:    outputKey,
	})
	cancel()
	if err != nil {
		return domain.TranscriptionJob{}, fmt.Errorf("submit job: %w", err)
	}

	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return domain.TranscriptionJob{}, fmt.Errorf("record job: %w", err)
	}

	m.logger.Debug("audio uploaded", "episode", ep.ID, "bytes", size, "uri", mediaURI)
	return job, nil
}

// CheckOutcome is the result of one completion check.
type CheckOutcome int

const (
	OutcomeCompleted CheckOutcome = iota
	OutcomePending
	OutcomeFailed
)

// CompletePending checks every STARTED job once. A failing job never stops
// the batch.
func (m *TranscriptionManager) CompletePending(ctx context.Context, now time.Time) (CompleteReport, error) {
	if err := m.checkBuckets(); err != nil {
		return CompleteReport{}, err
	}

	jobs, err := m.jobs.OpenJobs(ctx)
	if err != nil {
		return CompleteReport{}, fmt.Errorf("load open jobs: %w", err)
	}

	report := CompleteReport{Checked: len(jobs)}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		outcome, err := m.CheckJob(ctx, job, now)
		if err != nil {
			report.Errors++
			m.logger.Error("completion check failed", "job", job.Name, "error", err)
			continue
		}
		switch outcome {
		case OutcomeCompleted:
			report.Completed++
		case OutcomeFailed:
			report.Failed++
		default:
			report.Pending++
		}
	}

	m.logger.Info("completion finished",
		"checked", report.Checked,
		"completed", report.Completed,
		"pending", report.Pending,
		"failed", report.Failed,
		"errors", report.Errors)
	return report, nil
}

// CheckJob fetches provider output for one job and attaches it when ready.
// Every unfinished check counts as an attempt against the job policy.
func (m *TranscriptionManager) CheckJob(ctx context.Context, job domain.TranscriptionJob, now time.Time) (CheckOutcome, error) {
	bucket, key, ok := domain.ParseObjectURI(job.TranscriptURI)
	if !ok {
		return m.recordAttempt(ctx, job, fmt.Sprintf("invalid transcript uri %q", job.TranscriptURI), now)
	}

	gctx, cancel := withTimeout(ctx, m.downloadTimeout)
	output, err := m.store.Get(gctx, bucket, key)
	cancel()
	if errors.Is(err, domain.ErrObjectNotFound) {
		return m.recordAttempt(ctx, job, "transcript not ready", now)
	}
	if err != nil {
		return m.recordAttempt(ctx, job, "fetch transcript: "+err.Error(), now)
	}

	text, err := m.transcriber.Transcript(output)
	if err != nil {
		return m.recordAttempt(ctx, job, "parse transcript: "+err.Error(), now)
	}
	if strings.TrimSpace(text) == "" {
		m.logger.Warn("empty transcript", "job", job.Name)
		return m.recordAttempt(ctx, job, "empty transcript", now)
	}

	ep, err := m.episodes.EpisodeByAudioURL(ctx, job.AudioURL)
	if errors.Is(err, domain.ErrNotFound) {
		m.logger.Warn("no episode for audio", "job", job.Name, "audio", job.AudioURL)
		return m.recordAttempt(ctx, job, "episode not found", now)
	}
	if err != nil {
		return OutcomePending, fmt.Errorf("lookup episode: %w", err)
	}

	if err := m.jobs.CompleteJob(ctx, job, ep.ID, text, now); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return m.recordAttempt(ctx, job, "episode not found", now)
		}
		return OutcomePending, fmt.Errorf("complete job: %w", err)
	}

	m.logger.Info("transcript attached", "job", job.Name, "episode", ep.ID)
	return OutcomeCompleted, nil
}

func (m *TranscriptionManager) recordAttempt(ctx context.Context, job domain.TranscriptionJob, reason string, now time.Time) (CheckOutcome, error) {
	attempts := job.Attempts + 1
	status, outcome := domain.JobStarted, OutcomePending
	if m.policy.Exhausted(job, attempts, now) {
		status, outcome = domain.JobFailed, OutcomeFailed
		m.logger.Warn("transcription job failed", "job", job.Name, "attempts", attempts, "reason", reason)
	}

	if err := m.jobs.RecordJobAttempt(ctx, job.Name, status, reason, now); err != nil {
		return OutcomePending, fmt.Errorf("record attempt: %w", err)
	}
	return outcome, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
