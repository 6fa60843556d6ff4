package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/repository"
)

// ErrJobLost means the job's claim expired and another runner took it over.
var ErrJobLost = errors.New("job claim lost")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job goes straight to dead.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Queue is a Postgres-backed job queue with claim leases.
type Queue struct {
	db          repository.DBTX
	jobs        repository.JobRepository
	backoff     Backoff
	maxAttempts int
	logger      *slog.Logger
}

// NewQueue creates a queue.
func NewQueue(db repository.DBTX, jobs repository.JobRepository, backoff Backoff, maxAttempts int, logger *slog.Logger) *Queue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Queue{db: db, jobs: jobs, backoff: backoff, maxAttempts: maxAttempts, logger: logger}
}

// Enqueue schedules a job. db may be a transaction so the job commits with the
// mutation that caused it. A duplicate dedupeKey returns nil, nil.
func (q *Queue) Enqueue(ctx context.Context, db repository.DBTX, kind domain.JobKind, payload interface{}, runAt time.Time, dedupeKey string) (*domain.Job, error) {
	if db == nil {
		db = q.db
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	job, err := q.jobs.Enqueue(ctx, db, domain.EnqueueParams{
		Kind:        kind,
		Payload:     data,
		DedupeKey:   dedupeKey,
		RunAt:       runAt,
		MaxAttempts: q.maxAttempts,
	})
	if err != nil {
		return nil, err
	}
	if job == nil {
		q.logger.Debug("job deduplicated", "kind", kind, "dedupe_key", dedupeKey)
	}
	return job, nil
}

// LeaseExpiredReason is the last_error of jobs whose runner died on the final attempt.
const LeaseExpiredReason = "lease expired after max attempts"

// Claim takes up to limit runnable jobs for owner. Each claimed job is locked
// until now+ttl; a runner that dies lets the lock expire and the job is reclaimed
// until it reaches max attempts, after which it is dead.
func (q *Queue) Claim(ctx context.Context, owner string, ttl time.Duration, limit int) ([]domain.Job, error) {
	buried, err := q.jobs.BuryExpired(ctx, q.db, LeaseExpiredReason)
	if err != nil {
		return nil, err
	}
	for _, j := range buried {
		q.logger.Error("job dead", "job_id", j.ID, "kind", j.Kind, "attempts", j.Attempts, "error", LeaseExpiredReason)
	}
	return q.jobs.Claim(ctx, q.db, owner, ttl, limit)
}

// Complete marks a claimed job succeeded.
func (q *Queue) Complete(ctx context.Context, job *domain.Job) error {
	ok, err := q.jobs.Complete(ctx, q.db, job.ID, owner(job))
	if err != nil {
		return err
	}
	if !ok {
		return ErrJobLost
	}
	return nil
}

// Fail records a failed attempt. The job is re-queued with backoff while
// attempts remain, otherwise it is dead. The returned status is the new one.
func (q *Queue) Fail(ctx context.Context, job *domain.Job, cause error) (domain.JobStatus, error) {
	msg := cause.Error()
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts
	}

	if IsPermanent(cause) || job.Attempts >= maxAttempts {
		ok, err := q.jobs.Bury(ctx, q.db, job.ID, owner(job), msg)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrJobLost
		}
		q.logger.Error("job dead", "job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts, "error", msg)
		return domain.JobDead, nil
	}

	delay := q.backoff.Delay(job.Attempts)
	ok, err := q.jobs.Retry(ctx, q.db, job.ID, owner(job), delay, msg)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrJobLost
	}
	q.logger.Warn("job failed, retrying", "job_id", job.ID, "kind", job.Kind,
		"attempts", job.Attempts, "retry_in", delay, "error", msg)
	return domain.JobQueued, nil
}

// ListDead returns jobs that exhausted their attempts.
func (q *Queue) ListDead(ctx context.Context, limit int) ([]domain.Job, error) {
	return q.jobs.ListDead(ctx, q.db, limit)
}

func owner(job *domain.Job) string {
	if job.LockedBy == nil {
		return ""
	}
	return *job.LockedBy
}
