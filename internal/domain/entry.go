package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a confirmed grant of tickets to a user. CheckoutIntentID is nil for free entries.
type Entry struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	CampaignID       uuid.UUID  `json:"campaign_id"`
	CheckoutIntentID *uuid.UUID `json:"checkout_intent_id,omitempty"`
	Qty              int        `json:"qty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// TicketAllocation is the contiguous, inclusive ticket range bound to one entry.
type TicketAllocation struct {
	EntryID     uuid.UUID `json:"entry_id"`
	GiveawayID  uuid.UUID `json:"giveaway_id"`
	StartTicket int64     `json:"start_ticket"`
	EndTicket   int64     `json:"end_ticket"`
	CreatedAt   time.Time `json:"created_at"`
}

// Width is the number of tickets in the range.
func (a TicketAllocation) Width() int64 {
	return a.EndTicket - a.StartTicket + 1
}

// TicketCounter is the per-giveaway next-available-ticket cursor.
type TicketCounter struct {
	GiveawayID uuid.UUID `json:"giveaway_id"`
	NextTicket int64     `json:"next_ticket"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Allocated is the total number of tickets ever handed out.
func (c TicketCounter) Allocated() int64 {
	return c.NextTicket - 1
}

// AllocateParams is the input of a counter advance.
type AllocateParams struct {
	GiveawayID uuid.UUID
	EntryID    uuid.UUID
	Qty        int
	Cap        *int
}
