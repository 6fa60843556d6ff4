package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, kind, payload, dedupe_key, status, attempts, max_attempts, run_at,
		       locked_by, locked_until, last_error, created_at, updated_at`

type jobRepo struct{}

// NewJobRepository returns a pgx-backed JobRepository.
func NewJobRepository() JobRepository {
	return &jobRepo{}
}

func (r *jobRepo) Enqueue(ctx context.Context, db DBTX, p domain.EnqueueParams) (*domain.Job, error) {
	payload := p.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	var dedupe *string
	if p.DedupeKey != "" {
		dedupe = &p.DedupeKey
	}
	runAt := p.RunAt
	if runAt.IsZero() {
		runAt = time.Now()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	row := db.QueryRow(ctx, `
		INSERT INTO jobs (kind, payload, dedupe_key, run_at, max_attempts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (dedupe_key) WHERE status IN ('queued', 'running') DO NOTHING
		RETURNING `+jobColumns,
		string(p.Kind), payload, dedupe, runAt, maxAttempts)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// Claim takes queued jobs that are due plus running jobs whose lock expired
// with attempts left. SKIP LOCKED keeps concurrent runners from blocking on each other.
func (r *jobRepo) Claim(ctx context.Context, db DBTX, owner string, ttl time.Duration, limit int) ([]domain.Job, error) {
	rows, err := db.Query(ctx, `
		UPDATE jobs
		SET status = 'running', locked_by = $1,
		    locked_until = now() + make_interval(secs => $2),
		    attempts = attempts + 1, updated_at = now()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE (status = 'queued' AND run_at <= now())
			   OR (status = 'running' AND locked_until <= now() AND attempts < max_attempts)
			ORDER BY run_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, owner, ttl.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// BuryExpired moves running jobs whose lock expired at the attempt ceiling to
// dead. Their runner died mid-dispatch on the last attempt, so nothing else will.
func (r *jobRepo) BuryExpired(ctx context.Context, db DBTX, lastErr string) ([]domain.Job, error) {
	rows, err := db.Query(ctx, `
		UPDATE jobs
		SET status = 'dead', locked_by = NULL, locked_until = NULL, last_error = $1, updated_at = now()
		WHERE status = 'running' AND locked_until <= now() AND attempts >= max_attempts
		RETURNING `+jobColumns, lastErr)
	if err != nil {
		return nil, fmt.Errorf("bury expired jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *jobRepo) Complete(ctx context.Context, db DBTX, id uuid.UUID, owner string) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE jobs
		SET status = 'succeeded', locked_by = NULL, locked_until = NULL, last_error = NULL, updated_at = now()
		WHERE id = $1 AND status = 'running' AND locked_by = $2`, id, owner)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *jobRepo) Retry(ctx context.Context, db DBTX, id uuid.UUID, owner string, delay time.Duration, lastErr string) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE jobs
		SET status = 'queued', run_at = now() + make_interval(secs => $3),
		    locked_by = NULL, locked_until = NULL, last_error = $4, updated_at = now()
		WHERE id = $1 AND status = 'running' AND locked_by = $2`, id, owner, delay.Seconds(), lastErr)
	if err != nil {
		return false, fmt.Errorf("retry job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *jobRepo) Bury(ctx context.Context, db DBTX, id uuid.UUID, owner string, lastErr string) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE jobs
		SET status = 'dead', locked_by = NULL, locked_until = NULL, last_error = $3, updated_at = now()
		WHERE id = $1 AND status = 'running' AND locked_by = $2`, id, owner, lastErr)
	if err != nil {
		return false, fmt.Errorf("bury job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *jobRepo) ListDead(ctx context.Context, db DBTX, limit int) ([]domain.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs WHERE status = 'dead'
		ORDER BY updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.Kind, &j.Payload, &j.DedupeKey, &j.Status, &j.Attempts, &j.MaxAttempts, &j.RunAt,
		&j.LockedBy, &j.LockedUntil, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
