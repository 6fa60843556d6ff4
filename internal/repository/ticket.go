package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ticketRepo struct{}

// NewTicketRepository returns a pgx-backed TicketRepository.
func NewTicketRepository() TicketRepository {
	return &ticketRepo{}
}

func (r *ticketRepo) LockCounter(ctx context.Context, tx pgx.Tx, giveawayID uuid.UUID) (*domain.TicketCounter, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO giveaway_ticket_counters (giveaway_id, next_ticket)
		VALUES ($1, 1)
		ON CONFLICT (giveaway_id) DO NOTHING`, giveawayID)
	if err != nil {
		return nil, fmt.Errorf("ensure ticket counter: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT giveaway_id, next_ticket, updated_at
		FROM giveaway_ticket_counters
		WHERE giveaway_id = $1
		FOR UPDATE`, giveawayID)
	c, err := scanCounter(row)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("ticket counter %s vanished", giveawayID)
	}
	return c, nil
}

func (r *ticketRepo) PeekCounter(ctx context.Context, db DBTX, giveawayID uuid.UUID) (*domain.TicketCounter, error) {
	row := db.QueryRow(ctx, `
		SELECT giveaway_id, next_ticket, updated_at
		FROM giveaway_ticket_counters WHERE giveaway_id = $1`, giveawayID)
	return scanCounter(row)
}

func (r *ticketRepo) AdvanceCounter(ctx context.Context, tx pgx.Tx, giveawayID uuid.UUID, next int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE giveaway_ticket_counters SET next_ticket = $2, updated_at = now()
		WHERE giveaway_id = $1 AND next_ticket < $2`, giveawayID, next)
	if err != nil {
		return fmt.Errorf("advance ticket counter: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("advance ticket counter: counter %s not behind %d", giveawayID, next)
	}
	return nil
}

func (r *ticketRepo) InsertAllocation(ctx context.Context, db DBTX, a domain.TicketAllocation) (*domain.TicketAllocation, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO ticket_allocations (entry_id, giveaway_id, start_ticket, end_ticket)
		VALUES ($1, $2, $3, $4)
		RETURNING entry_id, giveaway_id, start_ticket, end_ticket, created_at`,
		a.EntryID, a.GiveawayID, a.StartTicket, a.EndTicket)
	alloc, err := scanAllocation(row)
	if err != nil {
		return nil, fmt.Errorf("insert ticket allocation: %w", err)
	}
	return alloc, nil
}

func (r *ticketRepo) FindAllocationByEntry(ctx context.Context, db DBTX, entryID uuid.UUID) (*domain.TicketAllocation, error) {
	row := db.QueryRow(ctx, `
		SELECT entry_id, giveaway_id, start_ticket, end_ticket, created_at
		FROM ticket_allocations WHERE entry_id = $1`, entryID)
	return scanAllocation(row)
}

func scanCounter(row pgx.Row) (*domain.TicketCounter, error) {
	var c domain.TicketCounter
	if err := row.Scan(&c.GiveawayID, &c.NextTicket, &c.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan ticket counter: %w", err)
	}
	return &c, nil
}

func scanAllocation(row pgx.Row) (*domain.TicketAllocation, error) {
	var a domain.TicketAllocation
	if err := row.Scan(&a.EntryID, &a.GiveawayID, &a.StartTicket, &a.EndTicket, &a.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan ticket allocation: %w", err)
	}
	return &a, nil
}
