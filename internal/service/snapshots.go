package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/jobs"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// SnapshotRefresher rebuilds public snapshots. *projection.Publisher satisfies it.
type SnapshotRefresher interface {
	RefreshCampaign(ctx context.Context, campaignID uuid.UUID) error
	RefreshWinner(ctx context.Context, campaignID uuid.UUID) error
}

// refreshSnapshots runs after a commit. A failed refresh never fails the caller;
// it is queued as a snapshot.refresh job instead.
func refreshSnapshots(ctx context.Context, pub SnapshotRefresher, queue *jobs.Queue, logger *slog.Logger, campaignID uuid.UUID, winner bool) {
	if pub == nil {
		return
	}
	err := pub.RefreshCampaign(ctx, campaignID)
	if err == nil && winner {
		err = pub.RefreshWinner(ctx, campaignID)
	}
	if err == nil {
		return
	}

	logger.Warn("snapshot refresh failed, queueing retry", "error", err, "campaign_id", campaignID)
	if queue == nil {
		return
	}
	payload := domain.SnapshotRefreshPayload{CampaignID: campaignID, Winner: winner}
	dedupe := fmt.Sprintf("snapshot:%s:%t", campaignID, winner)
	if _, err := queue.Enqueue(context.WithoutCancel(ctx), nil, domain.JobKindSnapshotRefresh, payload, time.Now(), dedupe); err != nil {
		logger.Error("enqueue snapshot refresh", "error", err, "campaign_id", campaignID)
	}
}

// RefIssuer issues public checkout references. *RefGenerator satisfies it.
type RefIssuer interface {
	Next() string
}

// RefGenerator issues public checkout references.
type RefGenerator struct {
	node *snowflake.Node
}

// NewRefGenerator creates a generator for the given node id (0-1023).
func NewRefGenerator(nodeID int64) (*RefGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return &RefGenerator{node: node}, nil
}

// Next returns a unique, time-ordered reference such as "gw_3Yx2pQ7kLm".
func (g *RefGenerator) Next() string {
	return "gw_" + g.node.Generate().Base58()
}
