package feed

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/ports"
)

// RSSSource fetches podcast feeds over HTTP and normalizes their items into episodes.
type RSSSource struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
	now       func() time.Time
	logger    *slog.Logger
}

var _ ports.FeedSource = (*RSSSource)(nil)
var _ ports.FeedInspector = (*RSSSource)(nil)

// NewRSSSource wires an HTTP client; a nil client gets a 20 second timeout.
func NewRSSSource(client *http.Client, userAgent string, logger *slog.Logger) *RSSSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = "PodcastNotifier/1.0"
	}
	return &RSSSource{
		client:    client,
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// Fetch downloads the feed and returns its entries in feed order. Entries at or
// before req.Since are dropped and at most req.MaxEpisodes are returned.
func (s *RSSSource) Fetch(ctx context.Context, req ports.FeedRequest) ([]domain.Episode, error) {
	feed, err := s.fetchFeed(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	now := s.now()
	episodes := make([]domain.Episode, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		ep := s.toEpisode(item, now)
		if !req.Since.IsZero() && !ep.PublishedAt.After(req.Since) {
			continue
		}
		episodes = append(episodes, ep)
		if req.MaxEpisodes > 0 && len(episodes) >= req.MaxEpisodes {
			break
		}
	}

	s.debug("feed fetched", "url", req.URL, "items", len(feed.Items), "episodes", len(episodes))
	return episodes, nil
}

// Title returns the channel title of a feed.
func (s *RSSSource) Title(ctx context.Context, feedURL string) (string, error) {
	feed, err := s.fetchFeed(ctx, feedURL)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(feed.Title), nil
}

func (s *RSSSource) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrFeedUnavailable, feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", domain.ErrFeedUnavailable, feedURL, resp.Status)
	}

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	return feed, nil
}

func (s *RSSSource) toEpisode(item *gofeed.Item, now time.Time) domain.Episode {
	title := strings.TrimSpace(html.UnescapeString(item.Title))

	raw := strings.TrimSpace(item.Published)
	if raw == "" {
		raw = strings.TrimSpace(item.Updated)
	}

	return domain.Episode{
		ID:             domain.EpisodeID(title, raw),
		Title:          title,
		PublishedAt:    publishedAt(item, raw, now),
		Summary:        strings.TrimSpace(item.Description),
		Link:           strings.TrimSpace(item.Link),
		AudioURL:       audioURL(item),
		TranscriptLink: transcriptHint(item),
	}
}

// publishedAt parses the entry date leniently; anything unreadable becomes now.
func publishedAt(item *gofeed.Item, raw string, now time.Time) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	if raw != "" {
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.UTC()
		}
	}
	return now
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".m4a": {}, ".mp4": {}, ".wav": {}, ".flac": {}, ".ogg": {}, ".oga": {}, ".amr": {}, ".webm": {}, ".aac": {},
}

// audioURL picks the first audio enclosure, falling back to an enclosure whose
// path looks like audio.
func audioURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(strings.ToLower(enc.Type), "audio/") {
			return enc.URL
		}
	}
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if u, err := url.Parse(enc.URL); err == nil {
			if _, ok := audioExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
				return enc.URL
			}
		}
	}
	return ""
}

// transcriptHint prefers the podcast:transcript tag and falls back to a
// show-notes link that mentions a transcript.
func transcriptHint(item *gofeed.Item) string {
	for _, tag := range item.Extensions["podcast"]["transcript"] {
		if u := strings.TrimSpace(tag.Attrs["url"]); u != "" {
			return u
		}
	}

	for _, body := range []string{item.Content, item.Description} {
		if link := findTranscriptLink(body); link != "" {
			return resolveLink(item.Link, link)
		}
	}
	return ""
}

func findTranscriptLink(body string) string {
	if !strings.Contains(strings.ToLower(body), "transcript") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return true
		}
		text := strings.ToLower(sel.Text())
		if strings.Contains(text, "transcript") || strings.Contains(strings.ToLower(href), "transcript") {
			found = href
			return false
		}
		return true
	})
	return found
}

func resolveLink(base, href string) string {
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() || base == "" {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

func (s *RSSSource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
