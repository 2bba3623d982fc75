package storage

import (
	"context"
	"fmt"
	"strings"
)

const serialPlaceholder = "{{serial}}"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS podcasts (
		id {{serial}},
		title TEXT NOT NULL,
		feed_url TEXT NOT NULL UNIQUE,
		owner TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		podcast_id BIGINT NOT NULL REFERENCES podcasts(id),
		title TEXT NOT NULL,
		published_at BIGINT NOT NULL,
		summary TEXT,
		link TEXT,
		audio_url TEXT,
		transcript_link TEXT,
		transcript_url TEXT,
		transcript TEXT,
		submit_attempts INTEGER NOT NULL DEFAULT 0,
		submit_error TEXT,
		submit_skipped BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_podcast_published ON episodes (podcast_id, published_at)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_audio_url ON episodes (audio_url)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id {{serial}},
		username TEXT NOT NULL,
		chat_id TEXT,
		podcast_id BIGINT NOT NULL REFERENCES podcasts(id),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		cadence TEXT NOT NULL,
		subscribed_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE (username, podcast_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transcription_jobs (
		job_name TEXT PRIMARY KEY,
		audio_url TEXT NOT NULL,
		media_uri TEXT NOT NULL,
		transcript_uri TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcription_jobs_status ON transcription_jobs (status)`,
	`CREATE INDEX IF NOT EXISTS idx_transcription_jobs_audio_url ON transcription_jobs (audio_url)`,
	`CREATE TABLE IF NOT EXISTS processed_episodes (
		episode_id TEXT NOT NULL REFERENCES episodes(id),
		username TEXT NOT NULL,
		processed_at BIGINT NOT NULL,
		summary_sent BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (episode_id, username)
	)`,
	`CREATE TABLE IF NOT EXISTS digest_periods (
		cadence TEXT NOT NULL,
		period TEXT NOT NULL,
		completed_at BIGINT NOT NULL,
		PRIMARY KEY (cadence, period)
	)`,
}

// Migrate creates missing tables and indexes.
func (r *Repository) Migrate(ctx context.Context) error {
	serial := "BIGSERIAL PRIMARY KEY"
	if r.dialect == DialectSQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, strings.ReplaceAll(stmt, serialPlaceholder, serial)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
