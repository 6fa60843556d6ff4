package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/metrics"
)

// Handler processes one job. Returning Permanent(err) skips retries.
type Handler func(ctx context.Context, job domain.Job) error

// Runner claims jobs from the queue and dispatches them by kind.
type Runner struct {
	queue     *Queue
	handlers  map[domain.JobKind]Handler
	owner     string
	ttl       time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewRunner creates a runner. owner identifies this process in locked_by.
func NewRunner(queue *Queue, owner string, ttl time.Duration, batchSize int, logger *slog.Logger) *Runner {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Runner{
		queue:     queue,
		handlers:  make(map[domain.JobKind]Handler),
		owner:     owner,
		ttl:       ttl,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Register binds a handler to a job kind.
func (r *Runner) Register(kind domain.JobKind, h Handler) {
	r.handlers[kind] = h
}

// RunOnce claims one batch and processes it sequentially.
func (r *Runner) RunOnce(ctx context.Context) (*domain.JobRunSummary, error) {
	claimed, err := r.queue.Claim(ctx, r.owner, r.ttl, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	summary := &domain.JobRunSummary{Status: domain.RunStatusOK, Claimed: len(claimed), Errors: []domain.RunError{}}
	if len(claimed) == 0 {
		summary.Status = domain.RunStatusNothingToDo
		return summary, nil
	}

	for i := range claimed {
		job := &claimed[i]
		start := time.Now()
		runErr := r.dispatch(ctx, job)

		if runErr == nil {
			if err := r.queue.Complete(ctx, job); err != nil {
				r.logger.Error("complete job", "job_id", job.ID, "error", err)
				summary.Errors = append(summary.Errors, domain.RunError{ID: job.ID.String(), Error: err.Error()})
				continue
			}
			summary.Succeeded++
			metrics.RecordJobRun(string(job.Kind), "succeeded", time.Since(start))
			continue
		}

		summary.Errors = append(summary.Errors, domain.RunError{ID: job.ID.String(), Error: runErr.Error()})
		status, err := r.queue.Fail(ctx, job, runErr)
		if err != nil {
			r.logger.Error("fail job", "job_id", job.ID, "error", err)
			continue
		}
		if status == domain.JobDead {
			summary.Dead++
			metrics.RecordJobRun(string(job.Kind), "dead", time.Since(start))
		} else {
			summary.Retried++
			metrics.RecordJobRun(string(job.Kind), "retried", time.Since(start))
		}
	}
	return summary, nil
}

func (r *Runner) dispatch(ctx context.Context, job *domain.Job) (err error) {
	h, ok := r.handlers[job.Kind]
	if !ok {
		return Permanent(fmt.Errorf("no handler for job kind %q", job.Kind))
	}

	// The claim expires after ttl; stop before another runner can take the job.
	ctx, cancel := context.WithTimeout(ctx, r.ttl)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()

	err = h(ctx, *job)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("job exceeded claim ttl %s: %w", r.ttl, err)
	}
	return err
}
