package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type prizeRepo struct{}

// NewPrizeRepository returns a pgx-backed PrizeRepository.
func NewPrizeRepository() PrizeRepository {
	return &prizeRepo{}
}

func (r *prizeRepo) Create(ctx context.Context, db DBTX, campaignID uuid.UUID, p domain.CreatePrizeParams) (*domain.InstantWinPrize, error) {
	var ratio *string
	if p.UnlockRatio != nil {
		s := p.UnlockRatio.String()
		ratio = &s
	}
	row := db.QueryRow(ctx, `
		INSERT INTO instant_win_prizes (campaign_id, title, value_text, unlock_ratio, image_url)
		VALUES ($1, $2, $3, $4::text::numeric, $5)
		RETURNING id, campaign_id, title, value_text, unlock_ratio::text, image_url, created_at`,
		campaignID, p.Title, p.ValueText, ratio, p.ImageURL)
	prize, err := scanPrize(row)
	if err != nil {
		return nil, fmt.Errorf("insert instant-win prize: %w", err)
	}
	return prize, nil
}

func (r *prizeRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.InstantWinPrize, error) {
	row := db.QueryRow(ctx, `
		SELECT id, campaign_id, title, value_text, unlock_ratio::text, image_url, created_at
		FROM instant_win_prizes WHERE id = $1`, id)
	return scanPrize(row)
}

func (r *prizeRepo) ListByCampaign(ctx context.Context, db DBTX, campaignID uuid.UUID) ([]domain.InstantWinPrize, error) {
	rows, err := db.Query(ctx, `
		SELECT id, campaign_id, title, value_text, unlock_ratio::text, image_url, created_at
		FROM instant_win_prizes
		WHERE campaign_id = $1
		ORDER BY created_at ASC, id ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query instant-win prizes: %w", err)
	}
	defer rows.Close()

	var prizes []domain.InstantWinPrize
	for rows.Next() {
		p, err := scanPrize(rows)
		if err != nil {
			return nil, err
		}
		prizes = append(prizes, *p)
	}
	return prizes, rows.Err()
}

func (r *prizeRepo) AwardedPrizeIDs(ctx context.Context, db DBTX, campaignID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := db.Query(ctx, `SELECT prize_id FROM instant_win_awards WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query awarded prizes: %w", err)
	}
	defer rows.Close()

	awarded := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan awarded prize: %w", err)
		}
		awarded[id] = true
	}
	return awarded, rows.Err()
}

func (r *prizeRepo) InsertAward(ctx context.Context, db DBTX, campaignID, intentID, prizeID uuid.UUID) (*domain.InstantWinAward, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO instant_win_awards (campaign_id, checkout_intent_id, prize_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (prize_id) DO NOTHING
		RETURNING id, campaign_id, checkout_intent_id, prize_id, awarded_at`,
		campaignID, intentID, prizeID)
	award, err := scanAward(row)
	if err != nil {
		return nil, fmt.Errorf("insert instant-win award: %w", err)
	}
	return award, nil
}

func (r *prizeRepo) FindAwardByIntent(ctx context.Context, db DBTX, intentID uuid.UUID) (*domain.InstantWinAward, error) {
	row := db.QueryRow(ctx, `
		SELECT id, campaign_id, checkout_intent_id, prize_id, awarded_at
		FROM instant_win_awards WHERE checkout_intent_id = $1`, intentID)
	return scanAward(row)
}

func scanPrize(row pgx.Row) (*domain.InstantWinPrize, error) {
	var p domain.InstantWinPrize
	var ratio *string
	err := row.Scan(&p.ID, &p.CampaignID, &p.Title, &p.ValueText, &ratio, &p.ImageURL, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan instant-win prize: %w", err)
	}
	if ratio != nil {
		d, err := decimal.NewFromString(*ratio)
		if err != nil {
			return nil, fmt.Errorf("parse unlock_ratio %q: %w", *ratio, err)
		}
		p.UnlockRatio = &d
	}
	return &p, nil
}

func scanAward(row pgx.Row) (*domain.InstantWinAward, error) {
	var a domain.InstantWinAward
	if err := row.Scan(&a.ID, &a.CampaignID, &a.CheckoutIntentID, &a.PrizeID, &a.AwardedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan instant-win award: %w", err)
	}
	return &a, nil
}
