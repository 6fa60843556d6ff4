package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type winnerRepo struct{}

// NewWinnerRepository returns a pgx-backed WinnerRepository.
func NewWinnerRepository() WinnerRepository {
	return &winnerRepo{}
}

func (r *winnerRepo) Insert(ctx context.Context, db DBTX, w *domain.Winner) (*domain.Winner, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO winners (campaign_id, user_id, entry_id, ticket_number, prize_title)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (campaign_id) DO NOTHING
		RETURNING id, campaign_id, user_id, entry_id, ticket_number, prize_title, announced_at`,
		w.CampaignID, w.UserID, w.EntryID, w.TicketNumber, w.PrizeTitle)
	winner, err := scanWinner(row)
	if err != nil {
		return nil, fmt.Errorf("insert winner: %w", err)
	}
	return winner, nil
}

func (r *winnerRepo) FindByCampaign(ctx context.Context, db DBTX, campaignID uuid.UUID) (*domain.Winner, error) {
	row := db.QueryRow(ctx, `
		SELECT id, campaign_id, user_id, entry_id, ticket_number, prize_title, announced_at
		FROM winners WHERE campaign_id = $1`, campaignID)
	return scanWinner(row)
}

func scanWinner(row pgx.Row) (*domain.Winner, error) {
	var w domain.Winner
	err := row.Scan(&w.ID, &w.CampaignID, &w.UserID, &w.EntryID, &w.TicketNumber, &w.PrizeTitle, &w.AnnouncedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan winner: %w", err)
	}
	return &w, nil
}
