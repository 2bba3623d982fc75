package llm

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/ports"
)

// CachedSummarizer memoizes summaries per episode so several immediate
// subscribers of one podcast trigger a single model call.
type CachedSummarizer struct {
	next  ports.Summarizer
	cache *lru.Cache[string, string]
}

var _ ports.Summarizer = (*CachedSummarizer)(nil)

// NewCachedSummarizer wraps next with an LRU of the given size.
func NewCachedSummarizer(next ports.Summarizer, size int) (*CachedSummarizer, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("summary cache: %w", err)
	}
	return &CachedSummarizer{next: next, cache: cache}, nil
}

// Name reports the wrapped provider.
func (c *CachedSummarizer) Name() string {
	return c.next.Name()
}

// Summarize serves from cache when possible. Failures are not cached.
func (c *CachedSummarizer) Summarize(ctx context.Context, req domain.SummaryRequest) (string, error) {
	if req.EpisodeID == "" {
		return c.next.Summarize(ctx, req)
	}
	if summary, ok := c.cache.Get(req.EpisodeID); ok {
		return summary, nil
	}

	summary, err := c.next.Summarize(ctx, req)
	if err != nil {
		return "", err
	}
	c.cache.Add(req.EpisodeID, summary)
	return summary, nil
}
