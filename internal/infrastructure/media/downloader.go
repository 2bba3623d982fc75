package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"PodcastNotifier/internal/ports"
)

// Downloader streams episode audio over HTTP.
type Downloader struct {
	client    *http.Client
	userAgent string
}

var _ ports.AudioDownloader = (*Downloader)(nil)

// NewDownloader wires an HTTP client. Audio files are large, so the caller's
// context bounds the transfer rather than a client timeout.
func NewDownloader(client *http.Client, userAgent string) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	return &Downloader{client: client, userAgent: userAgent}
}

// Download copies the audio at audioURL into dst and returns the byte count.
func (d *Downloader) Download(ctx context.Context, audioURL string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("audio host returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("copy audio: %w", err)
	}
	return n, nil
}

// ContentType maps a media format onto the MIME type used for uploads.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "audio/mpeg"
	case "mp4":
		return "audio/mp4"
	case "wav":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	case "ogg":
		return "audio/ogg"
	case "amr":
		return "audio/amr"
	case "webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
