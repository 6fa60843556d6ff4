package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/jobs"
	"github.com/attaboy/giveaways/internal/metrics"
	"github.com/attaboy/giveaways/internal/repository"
	"github.com/attaboy/giveaways/internal/settlement"
	"github.com/google/uuid"
)

// MainDrawLease is the lease name that keeps draw runs exclusive.
const MainDrawLease = "main_draw"

// DrawDeps groups the collaborators of DrawService.
type DrawDeps struct {
	Campaigns repository.CampaignRepository
	Entries   repository.EntryRepository
	Tickets   repository.TicketRepository
	Winners   repository.WinnerRepository
	Outbox    repository.OutboxRepository
	Leases    *jobs.LeaseManager
	Snapshots SnapshotRefresher
	Queue     *jobs.Queue
	RNG       settlement.RandomSource
}

// DrawConfig holds draw tunables.
type DrawConfig struct {
	BatchSize   int
	GracePeriod time.Duration
	LeaseTTL    time.Duration
	Owner       string
}

// DrawService ends due campaigns by drawing a main prize winner.
type DrawService struct {
	pool      repository.DB
	campaigns repository.CampaignRepository
	entries   repository.EntryRepository
	tickets   repository.TicketRepository
	winners   repository.WinnerRepository
	outbox    repository.OutboxRepository
	leases    *jobs.LeaseManager
	snapshots SnapshotRefresher
	queue     *jobs.Queue
	rng       settlement.RandomSource
	cfg       DrawConfig
	logger    *slog.Logger
}

// NewDrawService creates a DrawService.
func NewDrawService(pool repository.DB, deps DrawDeps, cfg DrawConfig, logger *slog.Logger) *DrawService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 7 * 24 * time.Hour
	}
	return &DrawService{
		pool:      pool,
		campaigns: deps.Campaigns,
		entries:   deps.Entries,
		tickets:   deps.Tickets,
		winners:   deps.Winners,
		outbox:    deps.Outbox,
		leases:    deps.Leases,
		snapshots: deps.Snapshots,
		queue:     deps.Queue,
		rng:       deps.RNG,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunDue processes up to BatchSize live campaigns whose end has passed. Only one
// caller at a time does any work; the others get a locked summary.
func (s *DrawService) RunDue(ctx context.Context, now time.Time) (*domain.DrawSummary, error) {
	summary := &domain.DrawSummary{Status: domain.RunStatusOK, Errors: []domain.RunError{}}

	err := s.leases.WithLease(ctx, MainDrawLease, s.cfg.Owner, s.cfg.LeaseTTL, func(ctx context.Context) error {
		due, err := s.campaigns.ListDue(ctx, s.pool, now, s.cfg.BatchSize)
		if err != nil {
			return domain.ErrInternal("list due campaigns", err)
		}
		if len(due) == 0 {
			summary.Status = domain.RunStatusNothingToDo
			return nil
		}

		for _, c := range due {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			summary.Processed++
			outcome, err := s.drawCampaign(ctx, c.ID, now)
			if err != nil {
				s.logger.Error("draw campaign", "error", err, "campaign_id", c.ID)
				summary.Errors = append(summary.Errors, domain.RunError{ID: c.ID.String(), Error: err.Error()})
				metrics.RecordDraw("error")
				continue
			}
			metrics.RecordDraw(string(outcome))
			switch outcome {
			case domain.DrawOutcomeEnded:
				summary.Ended++
			case domain.DrawOutcomeExtended:
				summary.Extended++
			}
		}
		return nil
	})
	if errors.Is(err, jobs.ErrLeaseHeld) {
		summary.Status = domain.RunStatusLocked
		return summary, nil
	}
	if err != nil {
		return summary, err
	}

	s.logger.Info("draw run finished",
		"status", summary.Status, "processed", summary.Processed,
		"ended", summary.Ended, "extended", summary.Extended, "errors", len(summary.Errors))
	return summary, nil
}

// drawCampaign settles one campaign inside its own transaction, holding the
// campaign row lock for the duration.
func (s *DrawService) drawCampaign(ctx context.Context, id uuid.UUID, now time.Time) (domain.DrawOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.campaigns.LockForUpdate(ctx, tx, id)
	if err != nil {
		return "", fmt.Errorf("lock campaign: %w", err)
	}
	if c == nil {
		return "", fmt.Errorf("campaign %s not found", id)
	}

	existing, err := s.winners.FindByCampaign(ctx, tx, id)
	if err != nil {
		return "", fmt.Errorf("find winner: %w", err)
	}
	if existing != nil {
		if err := s.endCampaign(ctx, tx, c); err != nil {
			return "", err
		}
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
		return domain.DrawOutcomeEnded, nil
	}

	if !c.DueForDraw(now) {
		return domain.DrawOutcomeSkipped, nil
	}

	entries, err := s.entries.ListForDraw(ctx, tx, id)
	if err != nil {
		return "", fmt.Errorf("list entries: %w", err)
	}
	sold := settlement.TicketsSold(entries)

	if sold == 0 {
		endAt := c.EndAt.Add(s.cfg.GracePeriod)
		if err := s.campaigns.ExtendEnd(ctx, tx, id, endAt); err != nil {
			return "", fmt.Errorf("extend campaign: %w", err)
		}
		if err := s.outbox.Insert(ctx, tx, domain.NewDrawExtendedEvent(id, endAt)); err != nil {
			return "", fmt.Errorf("extended event: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
		s.logger.Info("campaign had no entries, extended", "campaign_id", id, "end_at", endAt)
		refreshSnapshots(ctx, s.snapshots, s.queue, s.logger, id, false)
		return domain.DrawOutcomeExtended, nil
	}

	r, err := settlement.DrawPosition(ctx, s.rng, sold)
	if err != nil {
		return "", err
	}
	pick, err := settlement.SelectWinner(entries, r)
	if err != nil {
		return "", err
	}

	ticket := r
	alloc, err := s.tickets.FindAllocationByEntry(ctx, tx, pick.Entry.ID)
	if err != nil {
		return "", fmt.Errorf("find allocation: %w", err)
	}
	if alloc != nil {
		ticket = alloc.StartTicket + pick.Offset
	}

	w, err := s.winners.Insert(ctx, tx, &domain.Winner{
		CampaignID:   id,
		UserID:       pick.Entry.UserID,
		EntryID:      pick.Entry.ID,
		TicketNumber: ticket,
		PrizeTitle:   c.PrizeTitle,
	})
	if err != nil {
		return "", fmt.Errorf("insert winner: %w", err)
	}
	if w == nil {
		return "", fmt.Errorf("campaign %s already has a winner", id)
	}
	if err := s.endCampaign(ctx, tx, c); err != nil {
		return "", err
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewDrawCompletedEvent(w, sold)); err != nil {
		return "", fmt.Errorf("draw event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("main draw completed",
		"campaign_id", id, "tickets_sold", sold, "position", r,
		"entry_id", w.EntryID, "user_id", w.UserID, "ticket_number", w.TicketNumber)
	refreshSnapshots(ctx, s.snapshots, s.queue, s.logger, id, true)
	return domain.DrawOutcomeEnded, nil
}

func (s *DrawService) endCampaign(ctx context.Context, tx repository.DBTX, c *domain.Campaign) error {
	if c.Status == domain.CampaignEnded {
		return nil
	}
	moved, err := s.campaigns.UpdateStatus(ctx, tx, c.ID, c.Status, domain.CampaignEnded)
	if err != nil {
		return fmt.Errorf("end campaign: %w", err)
	}
	if !moved {
		return fmt.Errorf("campaign %s left status %s concurrently", c.ID, c.Status)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewCampaignStatusEvent(c.ID, c.Status, domain.CampaignEnded)); err != nil {
		return fmt.Errorf("status event: %w", err)
	}
	return nil
}
