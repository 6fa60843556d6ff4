package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus tracks the campaign lifecycle.
type CampaignStatus string

const (
	CampaignDraft  CampaignStatus = "draft"
	CampaignLive   CampaignStatus = "live"
	CampaignPaused CampaignStatus = "paused"
	CampaignEnded  CampaignStatus = "ended"
)

// Campaign is a time-boxed giveaway with a main prize and an optional instant-win pool.
// GiveawayID keys the ticket counter for the campaign's numbered ticket pool.
type Campaign struct {
	ID                uuid.UUID      `json:"id"`
	GiveawayID        uuid.UUID      `json:"giveaway_id"`
	Slug              string         `json:"slug"`
	Title             string         `json:"title"`
	Status            CampaignStatus `json:"status"`
	StartAt           time.Time      `json:"start_at"`
	EndAt             time.Time      `json:"end_at"`
	TicketPriceMinor  int64          `json:"ticket_price_minor"`
	Currency          string         `json:"currency"`
	MaxTicketsTotal   *int           `json:"max_tickets_total,omitempty"`
	MaxTicketsPerUser *int           `json:"max_tickets_per_user,omitempty"`
	PrizeTitle        string         `json:"prize_title"`
	PrizeValueText    *string        `json:"prize_value_text,omitempty"`
	PrizeImageURL     *string        `json:"prize_image_url,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// IsOpen reports whether the campaign accepts new entries at the given instant.
func (c *Campaign) IsOpen(now time.Time) bool {
	return c.Status == CampaignLive && !now.Before(c.StartAt) && now.Before(c.EndAt)
}

// DueForDraw reports whether the main draw scheduler should pick the campaign up.
func (c *Campaign) DueForDraw(now time.Time) bool {
	return c.Status == CampaignLive && !c.EndAt.After(now)
}

// CanTransition enforces draft→live→ended with paused as a manual side branch of live.
func (s CampaignStatus) CanTransition(to CampaignStatus) bool {
	switch s {
	case CampaignDraft:
		return to == CampaignLive
	case CampaignLive:
		return to == CampaignPaused || to == CampaignEnded
	case CampaignPaused:
		return to == CampaignLive || to == CampaignEnded
	default:
		return false
	}
}

// CreateCampaignParams holds the admin input for a new campaign.
type CreateCampaignParams struct {
	Slug              string    `json:"slug"`
	Title             string    `json:"title"`
	StartAt           time.Time `json:"start_at"`
	EndAt             time.Time `json:"end_at"`
	TicketPriceMinor  int64     `json:"ticket_price_minor"`
	Currency          string    `json:"currency"`
	MaxTicketsTotal   *int      `json:"max_tickets_total,omitempty"`
	MaxTicketsPerUser *int      `json:"max_tickets_per_user,omitempty"`
	PrizeTitle        string    `json:"prize_title"`
	PrizeValueText    *string   `json:"prize_value_text,omitempty"`
	PrizeImageURL     *string   `json:"prize_image_url,omitempty"`
}

// Winner is the result of a campaign's main draw. At most one per campaign.
type Winner struct {
	ID           uuid.UUID `json:"id"`
	CampaignID   uuid.UUID `json:"campaign_id"`
	UserID       uuid.UUID `json:"user_id"`
	EntryID      uuid.UUID `json:"entry_id"`
	TicketNumber int64     `json:"ticket_number"`
	PrizeTitle   string    `json:"prize_title"`
	AnnouncedAt  time.Time `json:"announced_at"`
}

// DrawOutcome is what happened to one campaign during a draw run.
type DrawOutcome string

const (
	DrawOutcomeEnded    DrawOutcome = "ended"
	DrawOutcomeExtended DrawOutcome = "extended"
	DrawOutcomeSkipped  DrawOutcome = "skipped"
)

// RunStatus distinguishes a run that did work from one that had nothing to do.
type RunStatus string

const (
	RunStatusOK          RunStatus = "ok"
	RunStatusNothingToDo RunStatus = "nothing_to_do"
	RunStatusLocked      RunStatus = "locked"
)

// RunError records one unit of work that failed inside a batch.
type RunError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// DrawSummary is returned to the job trigger after a draw run.
type DrawSummary struct {
	Status    RunStatus  `json:"status"`
	Processed int        `json:"processed"`
	Ended     int        `json:"ended"`
	Extended  int        `json:"extended"`
	Errors    []RunError `json:"errors"`
}
