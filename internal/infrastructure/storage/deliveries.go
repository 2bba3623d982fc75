package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PodcastNotifier/internal/domain"
)

// EligibleEpisodes returns transcribed episodes of one podcast published inside
// [Since, Until] that have no delivery record for the user, newest first.
func (r *Repository) EligibleEpisodes(ctx context.Context, q domain.EligibilityQuery) ([]domain.Episode, error) {
	query, args, err := r.sb.Select(episodeColumns...).
		From("episodes e").
		Where(sq.Eq{"e.podcast_id": q.PodcastID}).
		Where(sq.NotEq{"e.transcript": nil}).
		Where(sq.GtOrEq{"e.published_at": q.Since.Unix()}).
		Where(sq.LtOrEq{"e.published_at": q.Until.Unix()}).
		Where("NOT EXISTS (SELECT 1 FROM processed_episodes pe WHERE pe.episode_id = e.id AND pe.username = ?)", q.Username).
		OrderBy("e.published_at DESC", "e.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build eligible episodes: %w", err)
	}
	return queryRows(ctx, r.db, query, args, scanEpisode)
}

// ReserveDelivery inserts pending delivery records and returns the ids this call
// reserved. Ids that already carry a record for the user are skipped.
func (r *Repository) ReserveDelivery(ctx context.Context, username string, episodeIDs []string, at time.Time) ([]string, error) {
	if len(episodeIDs) == 0 {
		return nil, nil
	}

	var reserved []string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		reserved = reserved[:0]
		for _, id := range episodeIDs {
			query, args, err := r.sb.Insert("processed_episodes").
				Columns("episode_id", "username", "processed_at", "summary_sent").
				Values(id, username, at.Unix(), false).
				Suffix("ON CONFLICT (episode_id, username) DO NOTHING").
				ToSql()
			if err != nil {
				return fmt.Errorf("build reserve: %w", err)
			}

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("reserve %s: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n > 0 {
				reserved = append(reserved, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

// ConfirmDelivery marks reserved records as sent.
func (r *Repository) ConfirmDelivery(ctx context.Context, username string, episodeIDs []string, at time.Time) error {
	if len(episodeIDs) == 0 {
		return nil
	}

	query, args, err := r.sb.Update("processed_episodes").
		Set("summary_sent", true).
		Set("processed_at", at.Unix()).
		Where(sq.Eq{"username": username, "episode_id": episodeIDs}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build confirm: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("confirm delivery: %w", err)
	}
	return nil
}

// ReleaseDelivery drops reservations that were never sent so a later run retries them.
func (r *Repository) ReleaseDelivery(ctx context.Context, username string, episodeIDs []string) error {
	if len(episodeIDs) == 0 {
		return nil
	}

	query, args, err := r.sb.Delete("processed_episodes").
		Where(sq.Eq{"username": username, "episode_id": episodeIDs, "summary_sent": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("release delivery: %w", err)
	}
	return nil
}

// ProcessedEpisodes lists delivery records of a user.
func (r *Repository) ProcessedEpisodes(ctx context.Context, username string) ([]domain.ProcessedEpisode, error) {
	query, args, err := r.sb.Select("episode_id", "username", "processed_at", "summary_sent").
		From("processed_episodes").
		Where(sq.Eq{"username": username}).
		OrderBy("episode_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build processed episodes: %w", err)
	}

	return queryRows(ctx, r.db, query, args, func(s rowScanner) (domain.ProcessedEpisode, error) {
		var (
			pe        domain.ProcessedEpisode
			processed int64
		)
		if err := s.Scan(&pe.EpisodeID, &pe.Username, &processed, &pe.SummarySent); err != nil {
			return domain.ProcessedEpisode{}, err
		}
		pe.ProcessedAt = fromUnix(processed)
		return pe, nil
	})
}

// PeriodCompleted reports whether a gated digest already ran for the period.
func (r *Repository) PeriodCompleted(ctx context.Context, cadence domain.Cadence, period string) (bool, error) {
	query, args, err := r.sb.Select("completed_at").
		From("digest_periods").
		Where(sq.Eq{"cadence": string(cadence), "period": period}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build period lookup: %w", err)
	}

	var completedAt int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("period lookup: %w", err)
	}
	return true, nil
}

// CompletePeriod records a finished gated digest run.
func (r *Repository) CompletePeriod(ctx context.Context, cadence domain.Cadence, period string, at time.Time) error {
	query, args, err := r.sb.Insert("digest_periods").
		Columns("cadence", "period", "completed_at").
		Values(string(cadence), period, at.Unix()).
		Suffix("ON CONFLICT (cadence, period) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build complete period: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("complete period: %w", err)
	}
	return nil
}
