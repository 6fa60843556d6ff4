package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InstantWinPrize is one prize in a campaign's instant-win pool.
// A nil UnlockRatio means the prize never unlocks through sales progress.
type InstantWinPrize struct {
	ID          uuid.UUID        `json:"id"`
	CampaignID  uuid.UUID        `json:"campaign_id"`
	Title       string           `json:"title"`
	ValueText   *string          `json:"value_text,omitempty"`
	UnlockRatio *decimal.Decimal `json:"unlock_ratio,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// CreatePrizeParams holds admin input for a new instant-win prize.
type CreatePrizeParams struct {
	Title       string           `json:"title"`
	ValueText   *string          `json:"value_text,omitempty"`
	UnlockRatio *decimal.Decimal `json:"unlock_ratio,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
}

// InstantWinAward binds a prize irrevocably to one checkout intent.
type InstantWinAward struct {
	ID               uuid.UUID `json:"id"`
	CampaignID       uuid.UUID `json:"campaign_id"`
	CheckoutIntentID uuid.UUID `json:"checkout_intent_id"`
	PrizeID          uuid.UUID `json:"prize_id"`
	AwardedAt        time.Time `json:"awarded_at"`
}

// SalesProgress is the input to unlock-ratio evaluation.
// Cap nil means the campaign is uncapped and ratio-based prizes never unlock.
type SalesProgress struct {
	Sold int64
	Cap  *int
}

// Ratio returns sold/cap, or zero when uncapped.
func (p SalesProgress) Ratio() decimal.Decimal {
	if p.Cap == nil || *p.Cap <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(p.Sold).Div(decimal.NewFromInt(int64(*p.Cap)))
}

// AwardedPrize is the public view of a won prize.
type AwardedPrize struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	ValueText *string   `json:"value_text,omitempty"`
	ImageURL  *string   `json:"image_url,omitempty"`
}

// TicketRange is the public view of an allocation.
type TicketRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// AwardPayload is the confirmation result. It must be reproducible from persisted rows.
type AwardPayload struct {
	Confirmed   bool          `json:"confirmed"`
	CheckoutRef string        `json:"checkout_ref"`
	Qty         int           `json:"qty"`
	Won         bool          `json:"won"`
	Prize       *AwardedPrize `json:"prize"`
	Tickets     *TicketRange  `json:"tickets,omitempty"`
}

// NewAwardPayload assembles the payload from an intent, its allocation and its award, if any.
func NewAwardPayload(intent *CheckoutIntent, alloc *TicketAllocation, prize *InstantWinPrize) *AwardPayload {
	p := &AwardPayload{
		Confirmed:   true,
		CheckoutRef: intent.Ref,
		Qty:         intent.Qty,
	}
	if alloc != nil {
		p.Tickets = &TicketRange{Start: alloc.StartTicket, End: alloc.EndTicket}
	}
	if prize != nil {
		p.Won = true
		p.Prize = &AwardedPrize{
			ID:        prize.ID,
			Title:     prize.Title,
			ValueText: prize.ValueText,
			ImageURL:  prize.ImageURL,
		}
	}
	return p
}
