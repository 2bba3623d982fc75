package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"PodcastNotifier/internal/domain"
)

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
database:
  driver: sqlite
  dsn: file:podcasts.db
scheduler:
  timezone: Europe/Berlin
  notifyCron: "0 * * * *"
transcription:
  audioBucket: audio-bucket
  maxAge: 24h
notifications:
  dailyHour: 0
  weeklyDay: fri
  immediateWindow: 12h
summarizer:
  openai:
    systemPrompt: Summarize for engineers.
  anthropic:
    maxTokens: 512
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(transcriptBucketEnv, "transcript-bucket")
	t.Setenv(databaseDSNEnv, "file:override.db")

	cfg := Load()

	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("unexpected driver %s", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "file:override.db" {
		t.Fatalf("env must win over file, got %s", cfg.Database.DSN)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Fatalf("defaults must survive merge, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Scheduler.NotifyCron != "0 * * * *" || cfg.Scheduler.PollCron == "" {
		t.Fatalf("unexpected scheduler config: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.Location().String() != "Europe/Berlin" {
		t.Fatalf("unexpected location %s", cfg.Scheduler.Location())
	}
	if cfg.Transcription.AudioBucket != "audio-bucket" || cfg.Transcription.TranscriptBucket != "transcript-bucket" {
		t.Fatalf("unexpected buckets: %+v", cfg.Transcription)
	}
	if cfg.Transcription.MaxAge != 24*time.Hour {
		t.Fatalf("unexpected max age %s", cfg.Transcription.MaxAge)
	}

	if cfg.Summarizer.OpenAI.SystemPrompt != "Summarize for engineers." {
		t.Fatalf("unexpected openai prompt %q", cfg.Summarizer.OpenAI.SystemPrompt)
	}
	if cfg.Summarizer.Anthropic.SystemPrompt != defaultConfig().Summarizer.Anthropic.SystemPrompt {
		t.Fatalf("anthropic prompt must not follow openai, got %q", cfg.Summarizer.Anthropic.SystemPrompt)
	}
	if cfg.Summarizer.Anthropic.MaxTokens != 512 {
		t.Fatalf("unexpected anthropic max tokens %d", cfg.Summarizer.Anthropic.MaxTokens)
	}

	policies := cfg.Notifications.Policies()
	if len(policies) != 3 {
		t.Fatalf("expected three policies, got %d", len(policies))
	}
	if policies[0].Cadence != domain.CadenceImmediate || policies[0].Window != 12*time.Hour || policies[0].Batch {
		t.Fatalf("unexpected immediate policy: %+v", policies[0])
	}
	if policies[1].Gate == nil || policies[1].Gate.Hour != 0 {
		t.Fatalf("daily hour 0 must be kept, got %+v", policies[1].Gate)
	}
	if policies[2].Gate == nil || policies[2].Gate.Weekday == nil || *policies[2].Gate.Weekday != time.Friday {
		t.Fatalf("unexpected weekly gate: %+v", policies[2].Gate)
	}
	if policies[2].Window != 7*24*time.Hour {
		t.Fatalf("unexpected weekly window %s", policies[2].Window)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	if cfg.Summarizer.MaxTranscriptChars != 8000 {
		t.Fatalf("unexpected transcript limit %d", cfg.Summarizer.MaxTranscriptChars)
	}
	if cfg.Notifications.MaxMessageLength != 4096 {
		t.Fatalf("unexpected message limit %d", cfg.Notifications.MaxMessageLength)
	}
	if cfg.Transcription.Language != "en-US" {
		t.Fatalf("unexpected language %s", cfg.Transcription.Language)
	}
	if cfg.Scheduler.Location() != time.UTC && cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("unexpected location %s", cfg.Scheduler.Location())
	}
}
