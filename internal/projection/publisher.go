package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/metrics"
	"github.com/attaboy/giveaways/internal/repository"
	"github.com/google/uuid"
)

// Publisher regenerates the public snapshot rows after a mutation and mirrors
// them into the cache.
type Publisher struct {
	db        repository.DB
	campaigns repository.CampaignRepository
	entries   repository.EntryRepository
	prizes    repository.PrizeRepository
	winners   repository.WinnerRepository
	snapshots repository.SnapshotRepository
	cache     Store
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// PublisherDeps bundles the repositories the publisher reads from.
type PublisherDeps struct {
	Campaigns repository.CampaignRepository
	Entries   repository.EntryRepository
	Prizes    repository.PrizeRepository
	Winners   repository.WinnerRepository
	Snapshots repository.SnapshotRepository
}

// NewPublisher creates a snapshot publisher. cache may be nil.
func NewPublisher(db repository.DB, deps PublisherDeps, cache Store, cacheTTL time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:        db,
		campaigns: deps.Campaigns,
		entries:   deps.Entries,
		prizes:    deps.Prizes,
		winners:   deps.Winners,
		snapshots: deps.Snapshots,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// CacheKey is the cache key of one snapshot row.
func CacheKey(entity domain.SnapshotEntity, id uuid.UUID, kind domain.SnapshotKind) string {
	return fmt.Sprintf("snapshot:%s:%s:%s", entity, id, kind)
}

// RefreshCampaign rebuilds the campaign's list and detail snapshots.
func (p *Publisher) RefreshCampaign(ctx context.Context, campaignID uuid.UUID) (err error) {
	defer func() { metrics.RecordSnapshotRefresh(string(domain.SnapshotCampaign), err == nil) }()

	c, err := p.campaigns.FindByID(ctx, p.db, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if c == nil {
		return domain.ErrNotFound("campaign", campaignID.String())
	}
	stats, err := p.entries.Stats(ctx, p.db, campaignID)
	if err != nil {
		return err
	}
	prizes, err := p.prizes.ListByCampaign(ctx, p.db, campaignID)
	if err != nil {
		return err
	}
	awarded, err := p.prizes.AwardedPrizeIDs(ctx, p.db, campaignID)
	if err != nil {
		return err
	}
	winner, err := p.winners.FindByCampaign(ctx, p.db, campaignID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	list, err := newSnapshot(domain.SnapshotCampaign, campaignID, domain.SnapshotList, BuildCampaignCard(c, stats), now)
	if err != nil {
		return err
	}
	detail, err := newSnapshot(domain.SnapshotCampaign, campaignID, domain.SnapshotDetail,
		BuildCampaignDetail(c, stats, prizes, awarded, winner), now)
	if err != nil {
		return err
	}
	return p.replace(ctx, list, detail)
}

// RefreshWinner rebuilds the winner detail snapshot. A campaign without a
// winner is a no-op.
func (p *Publisher) RefreshWinner(ctx context.Context, campaignID uuid.UUID) (err error) {
	defer func() { metrics.RecordSnapshotRefresh(string(domain.SnapshotWinner), err == nil) }()

	w, err := p.winners.FindByCampaign(ctx, p.db, campaignID)
	if err != nil {
		return err
	}
	if w == nil {
		return nil
	}
	snap, err := newSnapshot(domain.SnapshotWinner, campaignID, domain.SnapshotDetail, BuildWinnerView(w), time.Now().UTC())
	if err != nil {
		return err
	}
	return p.replace(ctx, snap)
}

// Get returns a snapshot from the cache, falling back to the table.
// Nil, nil when no snapshot was generated yet.
func (p *Publisher) Get(ctx context.Context, entity domain.SnapshotEntity, id uuid.UUID, kind domain.SnapshotKind) (*domain.Snapshot, error) {
	key := CacheKey(entity, id, kind)
	if p.cache != nil {
		var cached domain.Snapshot
		err := GetJSON(ctx, p.cache, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			p.logger.Warn("snapshot cache read failed", "key", key, "error", err)
		}
	}

	snap, err := p.snapshots.Find(ctx, p.db, entity, id, kind)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		p.cacheSnapshot(ctx, *snap)
	}
	return snap, nil
}

func (p *Publisher) replace(ctx context.Context, snaps ...domain.Snapshot) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, s := range snaps {
		if err := p.snapshots.Replace(ctx, tx, s); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}

	for _, s := range snaps {
		p.cacheSnapshot(ctx, s)
	}
	return nil
}

func (p *Publisher) cacheSnapshot(ctx context.Context, s domain.Snapshot) {
	if p.cache == nil {
		return
	}
	key := CacheKey(s.Entity, s.EntityID, s.Kind)
	if err := SetJSON(ctx, p.cache, key, s, p.cacheTTL); err != nil {
		p.logger.Error("snapshot cache write failed", "key", key, "error", err)
	}
}

func newSnapshot(entity domain.SnapshotEntity, id uuid.UUID, kind domain.SnapshotKind, v interface{}, at time.Time) (domain.Snapshot, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("marshal %s %s snapshot: %w", entity, kind, err)
	}
	return domain.Snapshot{Entity: entity, EntityID: id, Kind: kind, Payload: data, GeneratedAt: at}, nil
}
