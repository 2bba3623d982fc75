package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/ports"
)

// memStore is an in-memory implementation of every repository port.
type memStore struct {
	mu sync.Mutex

	nextID    int64
	podcasts  []domain.Podcast
	episodes  map[string]domain.Episode
	order     []string
	jobs      map[string]domain.TranscriptionJob
	subs      []domain.Subscription
	processed map[string]domain.ProcessedEpisode
	periods   map[string]time.Time

	eligibleErr error
}

var (
	_ ports.PodcastRepository          = (*memStore)(nil)
	_ ports.EpisodeRepository          = (*memStore)(nil)
	_ ports.TranscriptionJobRepository = (*memStore)(nil)
	_ ports.SubscriptionRepository     = (*memStore)(nil)
	_ ports.DeliveryRepository         = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		episodes:  map[string]domain.Episode{},
		jobs:      map[string]domain.TranscriptionJob{},
		processed: map[string]domain.ProcessedEpisode{},
		periods:   map[string]time.Time{},
	}
}

func processedKey(username, episodeID string) string {
	return username + "|" + episodeID
}

func (m *memStore) AddPodcast(_ context.Context, p domain.Podcast) (domain.Podcast, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.podcasts {
		if existing.FeedURL == p.FeedURL {
			return existing, false, nil
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.podcasts = append(m.podcasts, p)
	return p, true, nil
}

func (m *memStore) Podcast(_ context.Context, id int64) (domain.Podcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.podcasts {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Podcast{}, domain.ErrNotFound
}

func (m *memStore) PodcastByFeed(_ context.Context, feedURL string) (domain.Podcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.podcasts {
		if p.FeedURL == feedURL {
			return p, nil
		}
	}
	return domain.Podcast{}, domain.ErrNotFound
}

func (m *memStore) ListPodcasts(context.Context) ([]domain.Podcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Podcast(nil), m.podcasts...), nil
}

func (m *memStore) InsertEpisodes(_ context.Context, podcastID int64, eps []domain.Episode) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, ep := range eps {
		if _, ok := m.episodes[ep.ID]; ok {
			continue
		}
		ep.PodcastID = podcastID
		m.episodes[ep.ID] = ep
		m.order = append(m.order, ep.ID)
		inserted++
	}
	return inserted, nil
}

func (m *memStore) EpisodesAwaitingTranscription(_ context.Context, limit int) ([]domain.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Episode
	for _, id := range m.order {
		ep := m.episodes[id]
		if ep.Transcript != "" || ep.AudioURL == "" || ep.SubmitSkipped || m.hasJobFor(ep.AudioURL) {
			continue
		}
		out = append(out, ep)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmitAttempts < out[j].SubmitAttempts })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) RecordSubmitFailure(_ context.Context, episodeID, reason string, skip bool, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.episodes[episodeID]
	if !ok {
		return domain.ErrNotFound
	}
	ep.SubmitAttempts++
	ep.SubmitError = reason
	ep.SubmitSkipped = ep.SubmitSkipped || skip
	m.episodes[episodeID] = ep
	return nil
}

func (m *memStore) hasJobFor(audioURL string) bool {
	for _, job := range m.jobs {
		if job.AudioURL == audioURL {
			return true
		}
	}
	return false
}

func (m *memStore) EpisodeByAudioURL(_ context.Context, audioURL string) (domain.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if ep := m.episodes[id]; ep.AudioURL == audioURL {
			return ep, nil
		}
	}
	return domain.Episode{}, domain.ErrNotFound
}

func (m *memStore) episode(id string) domain.Episode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.episodes[id]
}

func (m *memStore) CreateJob(_ context.Context, job domain.TranscriptionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.Name]; ok {
		return domain.ErrDuplicate
	}
	m.jobs[job.Name] = job
	return nil
}

func (m *memStore) OpenJobs(context.Context) ([]domain.TranscriptionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TranscriptionJob
	for _, job := range m.jobs {
		if job.Status == domain.JobStarted {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CompleteJob(_ context.Context, job domain.TranscriptionJob, episodeID, transcript string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.episodes[episodeID]
	if !ok {
		return domain.ErrNotFound
	}
	ep.Transcript = transcript
	ep.TranscriptURL = job.TranscriptURI
	m.episodes[episodeID] = ep

	stored := m.jobs[job.Name]
	stored.Status = domain.JobCompleted
	stored.Attempts++
	stored.LastError = ""
	stored.UpdatedAt = at
	m.jobs[job.Name] = stored
	return nil
}

func (m *memStore) RecordJobAttempt(_ context.Context, name string, status domain.JobStatus, lastError string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[name]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	job.Attempts++
	job.LastError = lastError
	job.UpdatedAt = at
	m.jobs[name] = job
	return nil
}

func (m *memStore) job(name string) domain.TranscriptionJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[name]
}

func (m *memStore) withTitle(sub domain.Subscription) domain.Subscription {
	for _, p := range m.podcasts {
		if p.ID == sub.PodcastID {
			sub.PodcastTitle = p.Title
		}
	}
	return sub
}

func (m *memStore) Subscription(_ context.Context, username string, podcastID int64) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		if sub.Username == username && sub.PodcastID == podcastID {
			return m.withTitle(sub), nil
		}
	}
	return domain.Subscription{}, domain.ErrNotFound
}

func (m *memStore) CreateSubscription(_ context.Context, sub domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subs {
		if existing.Username == sub.Username && existing.PodcastID == sub.PodcastID {
			return domain.ErrDuplicate
		}
	}
	m.nextID++
	sub.ID = m.nextID
	m.subs = append(m.subs, sub)
	return nil
}

func (m *memStore) UpdateSubscription(_ context.Context, sub domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.subs {
		if existing.Username == sub.Username && existing.PodcastID == sub.PodcastID {
			existing.Active = sub.Active
			existing.Cadence = sub.Cadence
			existing.UpdatedAt = sub.UpdatedAt
			if sub.ChatID != "" {
				existing.ChatID = sub.ChatID
			}
			m.subs[i] = existing
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) ActiveSubscriptions(context.Context) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range m.subs {
		if sub.Active {
			out = append(out, m.withTitle(sub))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].PodcastID < out[j].PodcastID
	})
	return out, nil
}

func (m *memStore) UserSubscriptions(_ context.Context, username string) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range m.subs {
		if sub.Username == username {
			out = append(out, m.withTitle(sub))
		}
	}
	return out, nil
}

func (m *memStore) subscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *memStore) EligibleEpisodes(_ context.Context, q domain.EligibilityQuery) ([]domain.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.eligibleErr != nil {
		return nil, m.eligibleErr
	}
	var out []domain.Episode
	for _, id := range m.order {
		ep := m.episodes[id]
		if ep.PodcastID != q.PodcastID || ep.Transcript == "" {
			continue
		}
		if ep.PublishedAt.Before(q.Since) || ep.PublishedAt.After(q.Until) {
			continue
		}
		if _, done := m.processed[processedKey(q.Username, ep.ID)]; done {
			continue
		}
		out = append(out, ep)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return out, nil
}

func (m *memStore) ReserveDelivery(_ context.Context, username string, ids []string, at time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var reserved []string
	for _, id := range ids {
		key := processedKey(username, id)
		if _, ok := m.processed[key]; ok {
			continue
		}
		m.processed[key] = domain.ProcessedEpisode{EpisodeID: id, Username: username, ProcessedAt: at}
		reserved = append(reserved, id)
	}
	return reserved, nil
}

func (m *memStore) ConfirmDelivery(_ context.Context, username string, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		key := processedKey(username, id)
		if pe, ok := m.processed[key]; ok {
			pe.SummarySent = true
			pe.ProcessedAt = at
			m.processed[key] = pe
		}
	}
	return nil
}

func (m *memStore) ReleaseDelivery(_ context.Context, username string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		key := processedKey(username, id)
		if pe, ok := m.processed[key]; ok && !pe.SummarySent {
			delete(m.processed, key)
		}
	}
	return nil
}

func (m *memStore) PeriodCompleted(_ context.Context, cadence domain.Cadence, period string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.periods[string(cadence)+"|"+period]
	return ok, nil
}

func (m *memStore) CompletePeriod(_ context.Context, cadence domain.Cadence, period string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[string(cadence)+"|"+period] = at
	return nil
}

func (m *memStore) delivered(username, episodeID string) (domain.ProcessedEpisode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pe, ok := m.processed[processedKey(username, episodeID)]
	return pe, ok
}

// fakeSource serves canned feeds by URL.
type fakeSource struct {
	mu    sync.Mutex
	feeds map[string][]domain.Episode
	fail  map[string]error
	reqs  []ports.FeedRequest
}

func (f *fakeSource) Fetch(_ context.Context, req ports.FeedRequest) ([]domain.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if err := f.fail[req.URL]; err != nil {
		return nil, err
	}
	return append([]domain.Episode(nil), f.feeds[req.URL]...), nil
}

func (f *fakeSource) Title(_ context.Context, feedURL string) (string, error) {
	if err := f.fail[feedURL]; err != nil {
		return "", err
	}
	return "Title of " + feedURL, nil
}

// fakeObjectStore keeps objects in memory keyed by bucket/key.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
	getErr  error
	// hang makes Get block until its context ends.
	hang    bool
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjectStore) Put(_ context.Context, bucket, key string, body io.ReadSeeker, contentType string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	f.types[bucket+"/"+key] = contentType
	return domain.ObjectURI(bucket, key), nil
}

func (f *fakeObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeObjectStore) set(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
}

func (f *fakeObjectStore) object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	return data, ok
}

// fakeTranscriber records submissions; output bytes are the transcript text.
type fakeTranscriber struct {
	mu        sync.Mutex
	requests  []domain.TranscriptionRequest
	submitErr error
}

func (f *fakeTranscriber) Submit(_ context.Context, req domain.TranscriptionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeTranscriber) Transcript(output []byte) (string, error) {
	if bytes.HasPrefix(output, []byte("!")) {
		return "", errors.New("malformed output")
	}
	return string(output), nil
}

// fakeDownloader writes a fixed payload unless the URL is marked failing.
type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeDownloader) Download(_ context.Context, audioURL string, dst io.Writer) (int64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, audioURL)
	fail := f.fail[audioURL]
	f.mu.Unlock()
	if fail {
		_, _ = dst.Write([]byte("partial"))
		return 7, errors.New("connection reset")
	}
	n, err := dst.Write([]byte("audio:" + audioURL))
	return int64(n), err
}

// fakeNotifier records sent messages and can fail per user.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []sentMessage
	failFor  map[string]bool
	failAt   int
}

type sentMessage struct {
	To   domain.Recipient
	Text string
}

func (f *fakeNotifier) Send(_ context.Context, to domain.Recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[to.Username] {
		return fmt.Errorf("chat not found for %s", to.Username)
	}
	if f.failAt > 0 && len(f.messages)+1 == f.failAt {
		return errors.New("flaky network")
	}
	f.messages = append(f.messages, sentMessage{To: to, Text: text})
	return nil
}

func (f *fakeNotifier) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...)
}

func (f *fakeNotifier) sentTo(username string) []string {
	var out []string
	for _, m := range f.sent() {
		if m.To.Username == username {
			out = append(out, m.Text)
		}
	}
	return out
}

// fakeSummarizer returns a deterministic summary and can fail per episode.
type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]bool
}

func (f *fakeSummarizer) Name() string { return "fake" }

func (f *fakeSummarizer) Summarize(_ context.Context, req domain.SummaryRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFor[req.EpisodeID] {
		return "", errors.New("model unavailable")
	}
	return "summary of " + strings.ToLower(req.Title), nil
}
