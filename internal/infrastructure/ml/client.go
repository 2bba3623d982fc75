package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/ports"
)

// Client talks to a self-hosted summarization service.
type Client struct {
	endpoint string
	apiKey   string
	maxChars int
	http     *http.Client
}

var _ ports.Summarizer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, maxChars int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		maxChars: maxChars,
		http:     &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider inside the registry.
func (c *Client) Name() string {
	return "service"
}

// Summarize posts the episode to /summarize and returns the produced text.
func (c *Client) Summarize(ctx context.Context, req domain.SummaryRequest) (string, error) {
	transcript := req.Transcript
	if c.maxChars > 0 {
		if runes := []rune(transcript); len(runes) > c.maxChars {
			transcript = string(runes[:c.maxChars])
		}
	}

	payload := map[string]any{
		"episode_id": req.EpisodeID,
		"title":      req.Title,
		"content":    transcript,
	}
	if !req.PublishedAt.IsZero() {
		payload["published_at"] = req.PublishedAt.UTC().Format(time.RFC3339)
	}

	var resp struct {
		Summary string `json:"summary"`
	}

	if err := c.post(ctx, "/summarize", payload, &resp); err != nil {
		return "", err
	}

	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return "", fmt.Errorf("empty summary from service")
	}
	return summary, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
