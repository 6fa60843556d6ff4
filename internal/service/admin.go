package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/jobs"
	"github.com/attaboy/giveaways/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// AdminService backs the operator endpoints.
type AdminService struct {
	pool      repository.DB
	campaigns repository.CampaignRepository
	prizes    repository.PrizeRepository
	outbox    repository.OutboxRepository
	queue     *jobs.Queue
	snapshots SnapshotRefresher
	logger    *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(
	pool repository.DB,
	campaigns repository.CampaignRepository,
	prizes repository.PrizeRepository,
	outbox repository.OutboxRepository,
	queue *jobs.Queue,
	snapshots SnapshotRefresher,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		pool:      pool,
		campaigns: campaigns,
		prizes:    prizes,
		outbox:    outbox,
		queue:     queue,
		snapshots: snapshots,
		logger:    logger,
	}
}

// CreateCampaign stores a draft campaign.
func (s *AdminService) CreateCampaign(ctx context.Context, params domain.CreateCampaignParams) (*domain.Campaign, error) {
	params.Currency = strings.ToUpper(params.Currency)
	if err := domain.ValidateCampaignParams(params); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	c, err := s.campaigns.Create(ctx, s.pool, params)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrConflict(fmt.Sprintf("campaign slug %q already exists", params.Slug))
		}
		return nil, domain.ErrInternal("create campaign", err)
	}

	s.logger.Info("campaign created", "campaign_id", c.ID, "slug", c.Slug)
	refreshSnapshots(ctx, s.snapshots, s.queue, s.logger, c.ID, false)
	return c, nil
}

// UpdateCampaignStatus applies a lifecycle transition.
func (s *AdminService) UpdateCampaignStatus(ctx context.Context, id uuid.UUID, to domain.CampaignStatus) (*domain.Campaign, error) {
	c, err := s.campaigns.FindByID(ctx, s.pool, id)
	if err != nil {
		return nil, domain.ErrInternal("find campaign", err)
	}
	if c == nil {
		return nil, domain.ErrNotFound("campaign", id.String())
	}
	if !c.Status.CanTransition(to) {
		return nil, domain.ErrConflict(fmt.Sprintf("cannot move campaign from %s to %s", c.Status, to))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	moved, err := s.campaigns.UpdateStatus(ctx, tx, id, c.Status, to)
	if err != nil {
		return nil, domain.ErrInternal("update campaign status", err)
	}
	if !moved {
		return nil, domain.ErrConflict("campaign status changed concurrently")
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewCampaignStatusEvent(id, c.Status, to)); err != nil {
		return nil, domain.ErrInternal("record status event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("campaign status changed", "campaign_id", id, "from", c.Status, "to", to)
	refreshSnapshots(ctx, s.snapshots, s.queue, s.logger, id, false)
	c.Status = to
	return c, nil
}

// CreatePrize adds an instant-win prize to a campaign.
func (s *AdminService) CreatePrize(ctx context.Context, campaignID uuid.UUID, params domain.CreatePrizeParams) (*domain.InstantWinPrize, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, domain.ErrValidation("title is required")
	}
	if err := domain.ValidateUnlockRatio(params.UnlockRatio); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	c, err := s.campaigns.FindByID(ctx, s.pool, campaignID)
	if err != nil {
		return nil, domain.ErrInternal("find campaign", err)
	}
	if c == nil {
		return nil, domain.ErrNotFound("campaign", campaignID.String())
	}
	if c.Status == domain.CampaignEnded {
		return nil, domain.ErrConflict("campaign has ended")
	}

	prize, err := s.prizes.Create(ctx, s.pool, campaignID, params)
	if err != nil {
		return nil, domain.ErrInternal("create prize", err)
	}
	refreshSnapshots(ctx, s.snapshots, s.queue, s.logger, campaignID, false)
	return prize, nil
}

// ListPrizes returns a campaign's instant-win pool.
func (s *AdminService) ListPrizes(ctx context.Context, campaignID uuid.UUID) ([]domain.InstantWinPrize, error) {
	prizes, err := s.prizes.ListByCampaign(ctx, s.pool, campaignID)
	if err != nil {
		return nil, domain.ErrInternal("list prizes", err)
	}
	if prizes == nil {
		prizes = []domain.InstantWinPrize{}
	}
	return prizes, nil
}

// ListDeadJobs returns jobs that exhausted their attempts.
func (s *AdminService) ListDeadJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	dead, err := s.queue.ListDead(ctx, limit)
	if err != nil {
		return nil, domain.ErrInternal("list dead jobs", err)
	}
	if dead == nil {
		dead = []domain.Job{}
	}
	return dead, nil
}

// RefreshSnapshots rebuilds a campaign's snapshots synchronously.
func (s *AdminService) RefreshSnapshots(ctx context.Context, campaignID uuid.UUID) error {
	if err := s.snapshots.RefreshCampaign(ctx, campaignID); err != nil {
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return domain.ErrInternal("refresh campaign snapshot", err)
	}
	if err := s.snapshots.RefreshWinner(ctx, campaignID); err != nil {
		return domain.ErrInternal("refresh winner snapshot", err)
	}
	return nil
}
