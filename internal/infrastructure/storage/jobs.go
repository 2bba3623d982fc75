package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PodcastNotifier/internal/domain"
)

var jobColumns = []string{
	"job_name", "audio_url", "media_uri", "transcript_uri", "status",
	"attempts", "last_error", "created_at", "updated_at",
}

// CreateJob records a freshly submitted job.
func (r *Repository) CreateJob(ctx context.Context, job domain.TranscriptionJob) error {
	query, args, err := r.sb.Insert("transcription_jobs").
		Columns(jobColumns...).
		Values(job.Name, job.AudioURL, job.MediaURI, job.TranscriptURI, string(job.Status),
			job.Attempts, nullString(job.LastError), job.CreatedAt.Unix(), job.CreatedAt.Unix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert job: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job %s: %w", job.Name, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// OpenJobs returns jobs that are still waiting for provider output.
func (r *Repository) OpenJobs(ctx context.Context) ([]domain.TranscriptionJob, error) {
	query, args, err := r.sb.Select(jobColumns...).
		From("transcription_jobs").
		Where(sq.Eq{"status": string(domain.JobStarted)}).
		OrderBy("created_at", "job_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build open jobs: %w", err)
	}
	return queryRows(ctx, r.db, query, args, scanJob)
}

// CompleteJob attaches the transcript to the episode and flips the job to
// COMPLETED in one transaction.
func (r *Repository) CompleteJob(ctx context.Context, job domain.TranscriptionJob, episodeID, transcript string, at time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		query, args, err := r.sb.Update("episodes").
			Set("transcript", transcript).
			Set("transcript_url", job.TranscriptURI).
			Set("updated_at", at.Unix()).
			Where(sq.Eq{"id": episodeID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build attach transcript: %w", err)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("attach transcript: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("episode %s: %w", episodeID, domain.ErrNotFound)
		}

		query, args, err = r.sb.Update("transcription_jobs").
			Set("status", string(domain.JobCompleted)).
			Set("attempts", sq.Expr("attempts + 1")).
			Set("last_error", nil).
			Set("updated_at", at.Unix()).
			Where(sq.Eq{"job_name": job.Name}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build complete job: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		return nil
	})
}

// RecordJobAttempt counts an unsuccessful completion check and stores the resulting status.
func (r *Repository) RecordJobAttempt(ctx context.Context, jobName string, status domain.JobStatus, lastError string, at time.Time) error {
	query, args, err := r.sb.Update("transcription_jobs").
		Set("status", string(status)).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("last_error", nullString(lastError)).
		Set("updated_at", at.Unix()).
		Where(sq.Eq{"job_name": jobName}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record attempt: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func scanJob(s rowScanner) (domain.TranscriptionJob, error) {
	var (
		job              domain.TranscriptionJob
		status           string
		lastError        sql.NullString
		created, updated int64
	)
	err := s.Scan(&job.Name, &job.AudioURL, &job.MediaURI, &job.TranscriptURI, &status,
		&job.Attempts, &lastError, &created, &updated)
	if err != nil {
		return domain.TranscriptionJob{}, err
	}
	job.Status = domain.JobStatus(status)
	job.LastError = lastError.String
	job.CreatedAt = fromUnix(created)
	job.UpdatedAt = fromUnix(updated)
	return job, nil
}
