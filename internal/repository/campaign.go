package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const campaignColumns = `id, giveaway_id, slug, title, status, start_at, end_at,
		       ticket_price_minor, currency, max_tickets_total, max_tickets_per_user,
		       prize_title, prize_value_text, prize_image_url, created_at, updated_at`

type campaignRepo struct{}

// NewCampaignRepository returns a pgx-backed CampaignRepository.
func NewCampaignRepository() CampaignRepository {
	return &campaignRepo{}
}

func (r *campaignRepo) Create(ctx context.Context, db DBTX, p domain.CreateCampaignParams) (*domain.Campaign, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO campaigns
		  (slug, title, start_at, end_at, ticket_price_minor, currency,
		   max_tickets_total, max_tickets_per_user, prize_title, prize_value_text, prize_image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+campaignColumns,
		p.Slug, p.Title, p.StartAt, p.EndAt,
		infra.MinorToNumeric(p.TicketPriceMinor), p.Currency,
		p.MaxTicketsTotal, p.MaxTicketsPerUser,
		p.PrizeTitle, p.PrizeValueText, p.PrizeImageURL,
	)
	c, err := scanCampaign(row)
	if err != nil {
		return nil, fmt.Errorf("insert campaign: %w", err)
	}
	return c, nil
}

func (r *campaignRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Campaign, error) {
	row := db.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	return scanCampaign(row)
}

func (r *campaignRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Campaign, error) {
	row := tx.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 FOR UPDATE`, id)
	return scanCampaign(row)
}

func (r *campaignRepo) ListDue(ctx context.Context, db DBTX, now time.Time, limit int) ([]domain.Campaign, error) {
	rows, err := db.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = 'live' AND end_at <= $1
		ORDER BY end_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *campaignRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, from, to domain.CampaignStatus) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE campaigns SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update campaign status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *campaignRepo) ExtendEnd(ctx context.Context, db DBTX, id uuid.UUID, endAt time.Time) error {
	_, err := db.Exec(ctx, `UPDATE campaigns SET end_at = $2, updated_at = now() WHERE id = $1`, id, endAt)
	if err != nil {
		return fmt.Errorf("extend campaign: %w", err)
	}
	return nil
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	var price pgtype.Numeric
	err := row.Scan(
		&c.ID, &c.GiveawayID, &c.Slug, &c.Title, &c.Status, &c.StartAt, &c.EndAt,
		&price, &c.Currency, &c.MaxTicketsTotal, &c.MaxTicketsPerUser,
		&c.PrizeTitle, &c.PrizeValueText, &c.PrizeImageURL, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	c.TicketPriceMinor, err = infra.NumericToMinor(price)
	if err != nil {
		return nil, fmt.Errorf("convert ticket_price_minor: %w", err)
	}
	return &c, nil
}
