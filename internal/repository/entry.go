package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type entryRepo struct{}

// NewEntryRepository returns a pgx-backed EntryRepository.
func NewEntryRepository() EntryRepository {
	return &entryRepo{}
}

func (r *entryRepo) Create(ctx context.Context, db DBTX, e *domain.Entry) (*domain.Entry, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO entries (user_id, campaign_id, checkout_intent_id, qty)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, campaign_id, checkout_intent_id, qty, created_at`,
		e.UserID, e.CampaignID, e.CheckoutIntentID, e.Qty)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}
	return entry, nil
}

func (r *entryRepo) FindByIntentID(ctx context.Context, db DBTX, intentID uuid.UUID) (*domain.Entry, error) {
	row := db.QueryRow(ctx, `
		SELECT id, user_id, campaign_id, checkout_intent_id, qty, created_at
		FROM entries WHERE checkout_intent_id = $1`, intentID)
	return scanEntry(row)
}

func (r *entryRepo) SumQtyByUser(ctx context.Context, db DBTX, campaignID, userID uuid.UUID) (int64, error) {
	var total int64
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty), 0)::bigint FROM entries
		WHERE campaign_id = $1 AND user_id = $2`, campaignID, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum user tickets: %w", err)
	}
	return total, nil
}

func (r *entryRepo) Stats(ctx context.Context, db DBTX, campaignID uuid.UUID) (domain.CampaignStats, error) {
	var s domain.CampaignStats
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty), 0)::bigint, COUNT(DISTINCT user_id)
		FROM entries WHERE campaign_id = $1`, campaignID).Scan(&s.TicketsSold, &s.Entrants)
	if err != nil {
		return s, fmt.Errorf("campaign stats: %w", err)
	}
	return s, nil
}

func (r *entryRepo) ListForDraw(ctx context.Context, db DBTX, campaignID uuid.UUID) ([]domain.Entry, error) {
	rows, err := db.Query(ctx, `
		SELECT id, user_id, campaign_id, checkout_intent_id, qty, created_at
		FROM entries
		WHERE campaign_id = $1
		ORDER BY created_at ASC, id ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (*domain.Entry, error) {
	var e domain.Entry
	err := row.Scan(&e.ID, &e.UserID, &e.CampaignID, &e.CheckoutIntentID, &e.Qty, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	return &e, nil
}
