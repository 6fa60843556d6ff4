package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrCapExceeded means the requested range would pass the giveaway's hard cap.
var ErrCapExceeded = errors.New("ticket cap exceeded")

// Engine hands out contiguous ticket ranges per giveaway:
//  1. LockCounter — lazily creates and row-locks the giveaway counter
//  2. Allocate — plans the range, writes the allocation, advances the counter
//  3. Peek / CheckCapacity — unlocked reads for advisory pre-checks
//
// Allocate must run inside the caller's transaction; the row lock is what
// serializes concurrent confirmations on the same giveaway.
type Engine struct {
	tickets repository.TicketRepository
}

// NewEngine creates a ticket engine over the given repository.
func NewEngine(tickets repository.TicketRepository) *Engine {
	return &Engine{tickets: tickets}
}

// LockCounter acquires the counter row lock and returns the current counter.
// Calling it again in the same transaction is a no-op lock.
func (e *Engine) LockCounter(ctx context.Context, tx pgx.Tx, giveawayID uuid.UUID) (*domain.TicketCounter, error) {
	counter, err := e.tickets.LockCounter(ctx, tx, giveawayID)
	if err != nil {
		return nil, fmt.Errorf("lock counter: %w", err)
	}
	return counter, nil
}

// Allocate reserves [next, next+qty-1] for the entry. ErrCapExceeded leaves the
// counter untouched.
func (e *Engine) Allocate(ctx context.Context, tx pgx.Tx, params domain.AllocateParams) (*domain.TicketAllocation, error) {
	if err := domain.ValidateQty(params.Qty); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	counter, err := e.LockCounter(ctx, tx, params.GiveawayID)
	if err != nil {
		return nil, err
	}

	start, end, err := planAllocation(counter.NextTicket, params.Qty, params.Cap)
	if err != nil {
		return nil, err
	}

	alloc, err := e.tickets.InsertAllocation(ctx, tx, domain.TicketAllocation{
		EntryID:     params.EntryID,
		GiveawayID:  params.GiveawayID,
		StartTicket: start,
		EndTicket:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("allocate: %w", err)
	}

	if err := e.tickets.AdvanceCounter(ctx, tx, params.GiveawayID, end+1); err != nil {
		return nil, fmt.Errorf("allocate: %w", err)
	}
	return alloc, nil
}

// Peek returns the next ticket number without locking. A giveaway that never
// sold starts at 1.
func (e *Engine) Peek(ctx context.Context, db repository.DBTX, giveawayID uuid.UUID) (int64, error) {
	counter, err := e.tickets.PeekCounter(ctx, db, giveawayID)
	if err != nil {
		return 0, fmt.Errorf("peek counter: %w", err)
	}
	if counter == nil {
		return 1, nil
	}
	return counter.NextTicket, nil
}

// CheckCapacity is the advisory sold-out check done before an intent exists.
// It can pass and still lose the race at confirmation time.
func (e *Engine) CheckCapacity(ctx context.Context, db repository.DBTX, giveawayID uuid.UUID, qty int, cap *int) error {
	if cap == nil {
		return nil
	}
	next, err := e.Peek(ctx, db, giveawayID)
	if err != nil {
		return err
	}
	_, _, err = planAllocation(next, qty, cap)
	return err
}

// planAllocation computes the inclusive range starting at next.
func planAllocation(next int64, qty int, cap *int) (int64, int64, error) {
	if next < 1 {
		return 0, 0, fmt.Errorf("invalid counter position %d", next)
	}
	if qty < 1 {
		return 0, 0, fmt.Errorf("qty must be at least 1, got %d", qty)
	}
	end := next + int64(qty) - 1
	if cap != nil && end > int64(*cap) {
		return 0, 0, ErrCapExceeded
	}
	return next, end, nil
}
