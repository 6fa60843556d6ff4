package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
)

// DrawRunner runs the main draw for every due campaign.
type DrawRunner interface {
	RunDue(ctx context.Context, now time.Time) (*domain.DrawSummary, error)
}

// JobRunner processes one batch of queued jobs.
type JobRunner interface {
	RunOnce(ctx context.Context) (*domain.JobRunSummary, error)
}

// JobsHandler exposes the internal job trigger.
type JobsHandler struct {
	draws  DrawRunner
	runner JobRunner
	logger *slog.Logger
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(draws DrawRunner, runner JobRunner, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{draws: draws, runner: runner, logger: logger}
}

// RunDraw handles POST /internal/jobs/draw.
func (h *JobsHandler) RunDraw(w http.ResponseWriter, r *http.Request) {
	summary, err := h.draws.RunDue(r.Context(), time.Now())
	if err != nil {
		h.logger.Error("draw trigger failed", "error", err)
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, summary)
}

// RunJobs handles POST /internal/jobs/run.
func (h *JobsHandler) RunJobs(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("job trigger failed", "error", err)
		RespondError(w, domain.ErrInternal("run jobs", err))
		return
	}
	RespondJSON(w, http.StatusOK, summary)
}
