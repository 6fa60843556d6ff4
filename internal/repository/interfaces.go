package repository

import (
	"context"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DB is a DBTX that can open transactions. *pgxpool.Pool satisfies it.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CampaignRepository provides access to campaigns.
type CampaignRepository interface {
	Create(ctx context.Context, db DBTX, params domain.CreateCampaignParams) (*domain.Campaign, error)

	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Campaign, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the campaign.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Campaign, error)

	// ListDue returns live campaigns whose end_at has passed, oldest first.
	ListDue(ctx context.Context, db DBTX, now time.Time, limit int) ([]domain.Campaign, error)

	// UpdateStatus moves a campaign from one status to another. It reports false when the
	// campaign was not in the expected status.
	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, from, to domain.CampaignStatus) (bool, error)

	ExtendEnd(ctx context.Context, db DBTX, id uuid.UUID, endAt time.Time) error
}

// CheckoutRepository provides access to checkout_intents and checkout_events.
type CheckoutRepository interface {
	Create(ctx context.Context, db DBTX, intent *domain.CheckoutIntent) (*domain.CheckoutIntent, error)
	FindByRef(ctx context.Context, db DBTX, ref string) (*domain.CheckoutIntent, error)
	FindByIdempotencyKey(ctx context.Context, db DBTX, key string) (*domain.CheckoutIntent, error)
	FindBySessionID(ctx context.Context, db DBTX, sessionID string) (*domain.CheckoutIntent, error)
	AttachSession(ctx context.Context, db DBTX, id uuid.UUID, sessionID string) error

	// MarkConfirmed is a compare-and-set pending → confirmed. False means another
	// caller already moved the intent.
	MarkConfirmed(ctx context.Context, db DBTX, id uuid.UUID, providerPaymentID *string) (bool, error)

	// MarkFailed is a compare-and-set pending → failed.
	MarkFailed(ctx context.Context, db DBTX, id uuid.UUID, reason string) (bool, error)

	// MarkRefunded stamps refunded_at on a confirmed intent once.
	MarkRefunded(ctx context.Context, db DBTX, id uuid.UUID) (bool, error)

	// ExpirePending fails pending intents created before the cutoff and returns them.
	ExpirePending(ctx context.Context, db DBTX, createdBefore time.Time, limit int) ([]domain.CheckoutIntent, error)

	InsertEvent(ctx context.Context, db DBTX, event *domain.CheckoutEvent) error
	ListEvents(ctx context.Context, db DBTX, intentID uuid.UUID) ([]domain.CheckoutEvent, error)
}

// EntryRepository provides access to entries.
type EntryRepository interface {
	Create(ctx context.Context, db DBTX, entry *domain.Entry) (*domain.Entry, error)
	FindByIntentID(ctx context.Context, db DBTX, intentID uuid.UUID) (*domain.Entry, error)

	// SumQtyByUser returns the tickets a user holds in a campaign.
	SumQtyByUser(ctx context.Context, db DBTX, campaignID, userID uuid.UUID) (int64, error)

	Stats(ctx context.Context, db DBTX, campaignID uuid.UUID) (domain.CampaignStats, error)

	// ListForDraw returns every entry of a campaign ordered by (created_at, id).
	ListForDraw(ctx context.Context, db DBTX, campaignID uuid.UUID) ([]domain.Entry, error)
}

// TicketRepository provides access to giveaway_ticket_counters and ticket_allocations.
type TicketRepository interface {
	// LockCounter creates the counter row if absent and locks it for the transaction.
	LockCounter(ctx context.Context, tx pgx.Tx, giveawayID uuid.UUID) (*domain.TicketCounter, error)

	// PeekCounter reads the counter without locking. Nil when no ticket was ever allocated.
	PeekCounter(ctx context.Context, db DBTX, giveawayID uuid.UUID) (*domain.TicketCounter, error)

	AdvanceCounter(ctx context.Context, tx pgx.Tx, giveawayID uuid.UUID, next int64) error

	InsertAllocation(ctx context.Context, db DBTX, alloc domain.TicketAllocation) (*domain.TicketAllocation, error)
	FindAllocationByEntry(ctx context.Context, db DBTX, entryID uuid.UUID) (*domain.TicketAllocation, error)
}

// PrizeRepository provides access to instant_win_prizes and instant_win_awards.
type PrizeRepository interface {
	Create(ctx context.Context, db DBTX, campaignID uuid.UUID, params domain.CreatePrizeParams) (*domain.InstantWinPrize, error)
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.InstantWinPrize, error)
	ListByCampaign(ctx context.Context, db DBTX, campaignID uuid.UUID) ([]domain.InstantWinPrize, error)

	// AwardedPrizeIDs returns the ids of prizes already bound to an intent.
	AwardedPrizeIDs(ctx context.Context, db DBTX, campaignID uuid.UUID) (map[uuid.UUID]bool, error)

	// InsertAward binds a prize to an intent. It returns nil, nil when the prize was
	// already awarded by a concurrent confirmation.
	InsertAward(ctx context.Context, db DBTX, campaignID, intentID, prizeID uuid.UUID) (*domain.InstantWinAward, error)

	FindAwardByIntent(ctx context.Context, db DBTX, intentID uuid.UUID) (*domain.InstantWinAward, error)
}

// WinnerRepository provides access to winners.
type WinnerRepository interface {
	// Insert records the main draw result. Nil, nil when the campaign already has a winner.
	Insert(ctx context.Context, db DBTX, w *domain.Winner) (*domain.Winner, error)
	FindByCampaign(ctx context.Context, db DBTX, campaignID uuid.UUID) (*domain.Winner, error)
}

// JobRepository provides access to the jobs table.
type JobRepository interface {
	// Enqueue inserts a job. Nil, nil when a queued or running job has the same dedupe key.
	Enqueue(ctx context.Context, db DBTX, params domain.EnqueueParams) (*domain.Job, error)

	// Claim moves up to limit claimable jobs to running under owner for ttl.
	Claim(ctx context.Context, db DBTX, owner string, ttl time.Duration, limit int) ([]domain.Job, error)

	// BuryExpired marks dead the running jobs whose lock expired with no attempts left.
	BuryExpired(ctx context.Context, db DBTX, lastErr string) ([]domain.Job, error)

	Complete(ctx context.Context, db DBTX, id uuid.UUID, owner string) (bool, error)
	Retry(ctx context.Context, db DBTX, id uuid.UUID, owner string, delay time.Duration, lastErr string) (bool, error)
	Bury(ctx context.Context, db DBTX, id uuid.UUID, owner string, lastErr string) (bool, error)

	ListDead(ctx context.Context, db DBTX, limit int) ([]domain.Job, error)
}

// LeaseRepository provides access to job_leases.
type LeaseRepository interface {
	// Acquire takes the named lease if it is free or expired. Nil, nil when held by someone else.
	Acquire(ctx context.Context, db DBTX, name, owner string, token uuid.UUID, ttl time.Duration) (*domain.Lease, error)

	// Renew extends a lease still held by its token. Nil, nil when it was lost.
	Renew(ctx context.Context, db DBTX, lease *domain.Lease, ttl time.Duration) (*domain.Lease, error)

	Release(ctx context.Context, db DBTX, lease *domain.Lease) error
}

// SnapshotRepository provides access to public_snapshots.
type SnapshotRepository interface {
	// Replace overwrites the snapshot row wholesale.
	Replace(ctx context.Context, db DBTX, snap domain.Snapshot) error
	Find(ctx context.Context, db DBTX, entity domain.SnapshotEntity, entityID uuid.UUID, kind domain.SnapshotKind) (*domain.Snapshot, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the mutation).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxRow, error)

	// MarkPublished deletes published events.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}
