package media

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDownloadCopiesBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ep.mp3" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ID3-audio-bytes"))
	}))
	defer server.Close()

	d := NewDownloader(server.Client(), "test-agent")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var buf bytes.Buffer
	n, err := d.Download(ctx, server.URL+"/ep.mp3", &buf)
	if err != nil {
		t.Fatalf("Download error: %v", err)
	}
	if n != int64(len("ID3-audio-bytes")) || buf.String() != "ID3-audio-bytes" {
		t.Fatalf("unexpected payload %q (%d bytes)", buf.String(), n)
	}

	if _, err := d.Download(ctx, server.URL+"/missing.mp3", &buf); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	if ContentType("MP3") != "audio/mpeg" {
		t.Fatalf("unexpected mp3 content type")
	}
	if ContentType("xyz") != "application/octet-stream" {
		t.Fatalf("unexpected fallback content type")
	}
}
