package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/handler"
)

// DeadJobLister lists jobs that exhausted their attempts.
type DeadJobLister interface {
	ListDeadJobs(ctx context.Context, limit int) ([]domain.Job, error)
}

// JobAdminHandler exposes the dead-letter view of the job queue.
type JobAdminHandler struct {
	jobs DeadJobLister
}

// NewJobAdminHandler creates a new JobAdminHandler.
func NewJobAdminHandler(jobs DeadJobLister) *JobAdminHandler {
	return &JobAdminHandler{jobs: jobs}
}

// ListDead handles GET /admin/jobs/dead?limit=N.
func (h *JobAdminHandler) ListDead(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			handler.RespondError(w, domain.ErrValidation("limit must be an integer"))
			return
		}
		limit = n
	}

	jobs, err := h.jobs.ListDeadJobs(r.Context(), limit)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, jobs)
}
