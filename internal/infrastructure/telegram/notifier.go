package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"PodcastNotifier/internal/config"
	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/ports"
)

// Notifier sends messages to Telegram chats via the bot API.
type Notifier struct {
	botToken  string
	apiBase   string
	parseMode string
	client    *http.Client
	logger    *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// NewNotifier registers the bot token and API settings.
func NewNotifier(cfg config.TelegramConfig, timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &Notifier{
		botToken:  cfg.BotToken,
		apiBase:   base,
		parseMode: cfg.ParseMode,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// Send posts text to the recipient's chat. When Telegram rejects the markup
// the message is resent once as plain text.
func (n *Notifier) Send(ctx context.Context, to domain.Recipient, text string) error {
	if n.botToken == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	chat := to.Address()
	if chat == "" || chat == "@" {
		return fmt.Errorf("telegram recipient is empty")
	}

	resp, err := n.sendMessage(ctx, chat, text, n.parseMode)
	if err != nil {
		return err
	}
	if resp.OK {
		return nil
	}

	if n.parseMode != "" && resp.ErrorCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(resp.Description), "parse entities") {
		n.logger.Warn("markup rejected, resending as plain text", "chat", chat, "reason", resp.Description)
		resp, err = n.sendMessage(ctx, chat, text, "")
		if err != nil {
			return err
		}
		if resp.OK {
			return nil
		}
	}

	return fmt.Errorf("telegram error %d: %s", resp.ErrorCode, resp.Description)
}

func (n *Notifier) sendMessage(ctx context.Context, chat, text, parseMode string) (apiResponse, error) {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", chat)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")
	if parseMode != "" {
		form.Set("parse_mode", parseMode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apiResponse{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return apiResponse{}, fmt.Errorf("telegram error: %s", resp.Status)
		}
		return apiResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if !out.OK && out.ErrorCode == 0 {
		out.ErrorCode = resp.StatusCode
	}
	return out, nil
}
