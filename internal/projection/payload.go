package projection

import (
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CampaignCard is the list-page shape of a campaign.
type CampaignCard struct {
	ID               uuid.UUID             `json:"id"`
	Slug             string                `json:"slug"`
	Title            string                `json:"title"`
	Status           domain.CampaignStatus `json:"status"`
	EndAt            time.Time             `json:"end_at"`
	TicketPriceMinor int64                 `json:"ticket_price_minor"`
	Currency         string                `json:"currency"`
	TicketsSold      int64                 `json:"tickets_sold"`
	MaxTicketsTotal  *int                  `json:"max_tickets_total,omitempty"`
	Progress         decimal.Decimal       `json:"progress"`
	SoldOut          bool                  `json:"sold_out"`
	PrizeTitle       string                `json:"prize_title"`
	PrizeImageURL    *string               `json:"prize_image_url,omitempty"`
}

// PrizeView is an instant-win prize as shown on the detail page.
type PrizeView struct {
	ID          uuid.UUID        `json:"id"`
	Title       string           `json:"title"`
	ValueText   *string          `json:"value_text,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
	UnlockRatio *decimal.Decimal `json:"unlock_ratio,omitempty"`
	Awarded     bool             `json:"awarded"`
}

// WinnerView is the public main-draw result.
type WinnerView struct {
	CampaignID   uuid.UUID `json:"campaign_id"`
	UserID       uuid.UUID `json:"user_id"`
	TicketNumber int64     `json:"ticket_number"`
	PrizeTitle   string    `json:"prize_title"`
	AnnouncedAt  time.Time `json:"announced_at"`
}

// CampaignDetail is the detail-page shape of a campaign.
type CampaignDetail struct {
	CampaignCard
	StartAt           time.Time   `json:"start_at"`
	MaxTicketsPerUser *int        `json:"max_tickets_per_user,omitempty"`
	PrizeValueText    *string     `json:"prize_value_text,omitempty"`
	Entrants          int64       `json:"entrants"`
	InstantWins       []PrizeView `json:"instant_wins"`
	Winner            *WinnerView `json:"winner,omitempty"`
}

// BuildCampaignCard denormalizes a campaign and its sales.
func BuildCampaignCard(c *domain.Campaign, stats domain.CampaignStats) CampaignCard {
	progress := domain.SalesProgress{Sold: stats.TicketsSold, Cap: c.MaxTicketsTotal}
	return CampaignCard{
		ID:               c.ID,
		Slug:             c.Slug,
		Title:            c.Title,
		Status:           c.Status,
		EndAt:            c.EndAt,
		TicketPriceMinor: c.TicketPriceMinor,
		Currency:         c.Currency,
		TicketsSold:      stats.TicketsSold,
		MaxTicketsTotal:  c.MaxTicketsTotal,
		Progress:         progress.Ratio().Round(4),
		SoldOut:          c.MaxTicketsTotal != nil && stats.TicketsSold >= int64(*c.MaxTicketsTotal),
		PrizeTitle:       c.PrizeTitle,
		PrizeImageURL:    c.PrizeImageURL,
	}
}

// BuildCampaignDetail adds the prize pool and the winner, if drawn.
func BuildCampaignDetail(c *domain.Campaign, stats domain.CampaignStats, prizes []domain.InstantWinPrize, awarded map[uuid.UUID]bool, w *domain.Winner) CampaignDetail {
	d := CampaignDetail{
		CampaignCard:      BuildCampaignCard(c, stats),
		StartAt:           c.StartAt,
		MaxTicketsPerUser: c.MaxTicketsPerUser,
		PrizeValueText:    c.PrizeValueText,
		Entrants:          stats.Entrants,
		InstantWins:       make([]PrizeView, 0, len(prizes)),
	}
	for _, p := range prizes {
		d.InstantWins = append(d.InstantWins, PrizeView{
			ID:          p.ID,
			Title:       p.Title,
			ValueText:   p.ValueText,
			ImageURL:    p.ImageURL,
			UnlockRatio: p.UnlockRatio,
			Awarded:     awarded[p.ID],
		})
	}
	if w != nil {
		v := BuildWinnerView(w)
		d.Winner = &v
	}
	return d
}

func BuildWinnerView(w *domain.Winner) WinnerView {
	return WinnerView{
		CampaignID:   w.CampaignID,
		UserID:       w.UserID,
		TicketNumber: w.TicketNumber,
		PrizeTitle:   w.PrizeTitle,
		AnnouncedAt:  w.AnnouncedAt,
	}
}
