package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"PodcastNotifier/internal/config"
	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/ports"
)

// AnthropicSummarizer implements ports.Summarizer on the Messages API.
type AnthropicSummarizer struct {
	client       *anthropic.Client
	model        anthropic.Model
	maxTokens    int64
	systemPrompt string
	maxChars     int
}

var _ ports.Summarizer = (*AnthropicSummarizer)(nil)

// NewAnthropicSummarizer builds a client from configuration. Extra request
// options are appended last, which lets tests point it at a local server.
func NewAnthropicSummarizer(cfg config.AnthropicConfig, maxChars int, timeout time.Duration, extra ...option.RequestOption) *AnthropicSummarizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(1),
	}
	opts = append(opts, extra...)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicSummarizer{
		client:       &client,
		model:        anthropic.Model(cfg.Model),
		maxTokens:    maxTokens,
		systemPrompt: safePrompt(cfg.SystemPrompt),
		maxChars:     maxChars,
	}
}

// Name identifies the provider inside the registry.
func (s *AnthropicSummarizer) Name() string {
	return "anthropic"
}

// Summarize asks the model for a three bullet summary.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, req domain.SummaryRequest) (string, error) {
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: s.systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req, s.maxChars))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no response from anthropic")
	}
	return cleanSummary(strings.Join(parts, "\n")), nil
}
