package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/jobs"
)

// RegisterJobHandlers binds the background job kinds to their services.
func RegisterJobHandlers(
	runner *jobs.Runner,
	checkout *CheckoutService,
	draws *DrawService,
	snapshots SnapshotRefresher,
	intentExpiry time.Duration,
	logger *slog.Logger,
) {
	runner.Register(domain.JobKindDrawRun, func(ctx context.Context, job domain.Job) error {
		summary, err := draws.RunDue(ctx, time.Now())
		if err != nil {
			return err
		}
		if len(summary.Errors) > 0 {
			// Failed campaigns stay due and are retried by the next scheduled run.
			logger.Warn("draw run finished with errors", "job_id", job.ID, "errors", len(summary.Errors))
		}
		return nil
	})

	runner.Register(domain.JobKindSnapshotRefresh, func(ctx context.Context, job domain.Job) error {
		var p domain.SnapshotRefreshPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return jobs.Permanent(fmt.Errorf("decode snapshot payload: %w", err))
		}
		if err := snapshots.RefreshCampaign(ctx, p.CampaignID); err != nil {
			if domain.HasCode(err, domain.CodeNotFound) {
				return jobs.Permanent(err)
			}
			return err
		}
		if p.Winner {
			return snapshots.RefreshWinner(ctx, p.CampaignID)
		}
		return nil
	})

	runner.Register(domain.JobKindCheckoutExpire, func(ctx context.Context, _ domain.Job) error {
		_, err := checkout.ExpireStale(ctx, intentExpiry)
		return err
	})
}
