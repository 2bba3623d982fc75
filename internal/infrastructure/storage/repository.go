package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/ports"
)

// Repository persists podcasts, episodes, subscriptions, transcription jobs and
// delivery records in Postgres or SQLite.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

var (
	_ ports.PodcastRepository          = (*Repository)(nil)
	_ ports.EpisodeRepository          = (*Repository)(nil)
	_ ports.TranscriptionJobRepository = (*Repository)(nil)
	_ ports.SubscriptionRepository     = (*Repository)(nil)
	_ ports.DeliveryRepository         = (*Repository)(nil)
)

// NewRepository wires a sql.DB implementation.
func NewRepository(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(dialect.placeholders()),
	}
}

// Close releases the underlying pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

var podcastColumns = []string{"id", "title", "feed_url", "owner", "created_at", "updated_at"}

// AddPodcast inserts the podcast unless its feed URL is already known. The
// stored podcast is returned together with whether it was created.
func (r *Repository) AddPodcast(ctx context.Context, podcast domain.Podcast) (domain.Podcast, bool, error) {
	now := podcast.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	query, args, err := r.sb.Insert("podcasts").
		Columns("title", "feed_url", "owner", "created_at", "updated_at").
		Values(podcast.Title, podcast.FeedURL, nullString(podcast.Owner), now.Unix(), now.Unix()).
		Suffix("ON CONFLICT (feed_url) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return domain.Podcast{}, false, fmt.Errorf("build insert podcast: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := r.PodcastByFeed(ctx, podcast.FeedURL)
		return existing, false, err
	}
	if err != nil {
		return domain.Podcast{}, false, fmt.Errorf("insert podcast: %w", err)
	}

	podcast.ID = id
	podcast.CreatedAt = fromUnix(now.Unix())
	podcast.UpdatedAt = podcast.CreatedAt
	return podcast, true, nil
}

// Podcast loads a podcast by id.
func (r *Repository) Podcast(ctx context.Context, id int64) (domain.Podcast, error) {
	return r.podcastWhere(ctx, sq.Eq{"id": id})
}

// PodcastByFeed loads a podcast by feed URL.
func (r *Repository) PodcastByFeed(ctx context.Context, feedURL string) (domain.Podcast, error) {
	return r.podcastWhere(ctx, sq.Eq{"feed_url": feedURL})
}

func (r *Repository) podcastWhere(ctx context.Context, pred sq.Eq) (domain.Podcast, error) {
	query, args, err := r.sb.Select(podcastColumns...).From("podcasts").Where(pred).ToSql()
	if err != nil {
		return domain.Podcast{}, fmt.Errorf("build select podcast: %w", err)
	}

	p, err := scanPodcast(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Podcast{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Podcast{}, fmt.Errorf("select podcast: %w", err)
	}
	return p, nil
}

// ListPodcasts returns the catalog ordered by id.
func (r *Repository) ListPodcasts(ctx context.Context) ([]domain.Podcast, error) {
	query, args, err := r.sb.Select(podcastColumns...).From("podcasts").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list podcasts: %w", err)
	}
	return queryRows(ctx, r.db, query, args, scanPodcast)
}

var episodeColumns = []string{
	"e.id", "e.podcast_id", "e.title", "e.published_at", "e.summary", "e.link",
	"e.audio_url", "e.transcript_link", "e.transcript_url", "e.transcript", "e.created_at",
	"e.submit_attempts", "e.submit_error", "e.submit_skipped",
}

// InsertEpisodes stores episodes not seen before and returns how many were new.
// Known ids are left untouched.
func (r *Repository) InsertEpisodes(ctx context.Context, podcastID int64, episodes []domain.Episode) (int, error) {
	if len(episodes) == 0 {
		return 0, nil
	}

	now := time.Now().UTC().Unix()
	inserted := 0
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, ep := range episodes {
			query, args, err := r.sb.Insert("episodes").
				Columns("id", "podcast_id", "title", "published_at", "summary", "link",
					"audio_url", "transcript_link", "created_at", "updated_at").
				Values(ep.ID, podcastID, ep.Title, ep.PublishedAt.Unix(), nullString(ep.Summary), nullString(ep.Link),
					nullString(ep.AudioURL), nullString(ep.TranscriptLink), now, now).
				Suffix("ON CONFLICT (id) DO NOTHING").
				ToSql()
			if err != nil {
				return fmt.Errorf("build insert episode: %w", err)
			}

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("insert episode %s: %w", ep.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// EpisodesAwaitingTranscription selects untranscribed, unskipped episodes with
// audio and no job yet. Episodes with fewer failed submissions come first.
func (r *Repository) EpisodesAwaitingTranscription(ctx context.Context, limit int) ([]domain.Episode, error) {
	builder := r.sb.Select(episodeColumns...).
		From("episodes e").
		Where(sq.Eq{"e.transcript": nil}).
		Where(sq.NotEq{"e.audio_url": nil}).
		Where(sq.Eq{"e.submit_skipped": false}).
		Where("NOT EXISTS (SELECT 1 FROM transcription_jobs j WHERE j.audio_url = e.audio_url)").
		OrderBy("e.submit_attempts", "e.published_at DESC", "e.id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build awaiting transcription: %w", err)
	}
	return queryRows(ctx, r.db, query, args, scanEpisode)
}

// RecordSubmitFailure counts a failed submission and optionally takes the
// episode out of the submission queue.
func (r *Repository) RecordSubmitFailure(ctx context.Context, episodeID, reason string, skip bool, at time.Time) error {
	update := r.sb.Update("episodes").
		Set("submit_attempts", sq.Expr("submit_attempts + 1")).
		Set("submit_error", nullString(reason)).
		Set("updated_at", at.Unix()).
		Where(sq.Eq{"id": episodeID})
	if skip {
		update = update.Set("submit_skipped", true)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build record submit failure: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("record submit failure: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("episode %s: %w", episodeID, domain.ErrNotFound)
	}
	return nil
}

// EpisodeByAudioURL finds the most recent episode that points at audioURL.
func (r *Repository) EpisodeByAudioURL(ctx context.Context, audioURL string) (domain.Episode, error) {
	query, args, err := r.sb.Select(episodeColumns...).
		From("episodes e").
		Where(sq.Eq{"e.audio_url": audioURL}).
		OrderBy("e.published_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.Episode{}, fmt.Errorf("build episode by audio: %w", err)
	}

	ep, err := scanEpisode(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Episode{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Episode{}, fmt.Errorf("select episode by audio: %w", err)
	}
	return ep, nil
}

func (r *Repository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryRows[T any](ctx context.Context, q queryer, query string, args []any, scan func(rowScanner) (T, error)) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	var result []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan: %w", err)
		}
		result = append(result, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

func scanPodcast(s rowScanner) (domain.Podcast, error) {
	var (
		p                domain.Podcast
		owner            sql.NullString
		created, updated int64
	)
	if err := s.Scan(&p.ID, &p.Title, &p.FeedURL, &owner, &created, &updated); err != nil {
		return domain.Podcast{}, err
	}
	p.Owner = owner.String
	p.CreatedAt = fromUnix(created)
	p.UpdatedAt = fromUnix(updated)
	return p, nil
}

func scanEpisode(s rowScanner) (domain.Episode, error) {
	var (
		ep                                 domain.Episode
		published, created                 int64
		summary, link, audio               sql.NullString
		transcriptLink, transcriptURL, txt sql.NullString
		submitError                        sql.NullString
	)
	err := s.Scan(&ep.ID, &ep.PodcastID, &ep.Title, &published, &summary, &link,
		&audio, &transcriptLink, &transcriptURL, &txt, &created,
		&ep.SubmitAttempts, &submitError, &ep.SubmitSkipped)
	if err != nil {
		return domain.Episode{}, err
	}
	ep.PublishedAt = fromUnix(published)
	ep.Summary = summary.String
	ep.Link = link.String
	ep.AudioURL = audio.String
	ep.TranscriptLink = transcriptLink.String
	ep.TranscriptURL = transcriptURL.String
	ep.Transcript = txt.String
	ep.CreatedAt = fromUnix(created)
	ep.SubmitError = submitError.String
	return ep, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
