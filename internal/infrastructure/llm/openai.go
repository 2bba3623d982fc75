package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"PodcastNotifier/internal/config"
	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/ports"
)

// OpenAISummarizer implements ports.Summarizer backed by OpenAI compatible APIs.
type OpenAISummarizer struct {
	client       *openai.Client
	model        openai.ChatModel
	systemPrompt string
	maxChars     int
}

var _ ports.Summarizer = (*OpenAISummarizer)(nil)

// NewOpenAISummarizer builds a client from configuration.
func NewOpenAISummarizer(cfg config.OpenAIConfig, maxChars int, timeout time.Duration) *OpenAISummarizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}

	client := openai.NewClient(opts...)
	return &OpenAISummarizer{
		client:       &client,
		model:        openai.ChatModel(model),
		systemPrompt: safePrompt(cfg.SystemPrompt),
		maxChars:     maxChars,
	}
}

// Name identifies the provider inside the registry.
func (s *OpenAISummarizer) Name() string {
	return "openai"
}

// Summarize asks the chat completion endpoint for a three bullet summary.
func (s *OpenAISummarizer) Summarize(ctx context.Context, req domain.SummaryRequest) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(s.systemPrompt),
			openai.UserMessage(BuildPrompt(req, s.maxChars)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	summary := cleanSummary(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("empty summary from openai")
	}
	return summary, nil
}
