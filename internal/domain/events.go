package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(aggType AggregateType, aggID uuid.UUID, evtType EventType, partitionKey string, payload interface{}) OutboxDraft {
	data, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: aggType,
		AggregateID:   aggID.String(),
		EventType:     evtType,
		PartitionKey:  partitionKey,
		Headers:       json.RawMessage(`{}`),
		Payload:       data,
		OccurredAt:    time.Now(),
	}
}

// NewCheckoutCreatedEvent is emitted when a pending intent is recorded.
func NewCheckoutCreatedEvent(intent *CheckoutIntent) OutboxDraft {
	return newDraft(AggregateCheckout, intent.ID, EventCheckoutCreated, intent.CampaignID.String(), map[string]interface{}{
		"ref":               intent.Ref,
		"user_id":           intent.UserID.String(),
		"campaign_id":       intent.CampaignID.String(),
		"qty":               intent.Qty,
		"total_price_minor": intent.TotalPriceMinor,
		"currency":          intent.Currency,
		"provider":          intent.Provider,
	})
}

// NewCheckoutConfirmedEvent is emitted in the confirmation transaction.
func NewCheckoutConfirmedEvent(intent *CheckoutIntent, entry *Entry, alloc *TicketAllocation) OutboxDraft {
	return newDraft(AggregateCheckout, intent.ID, EventCheckoutConfirmed, intent.CampaignID.String(), map[string]interface{}{
		"ref":          intent.Ref,
		"user_id":      intent.UserID.String(),
		"campaign_id":  intent.CampaignID.String(),
		"entry_id":     entry.ID.String(),
		"qty":          entry.Qty,
		"start_ticket": alloc.StartTicket,
		"end_ticket":   alloc.EndTicket,
	})
}

// NewCheckoutFailedEvent is emitted when an intent moves to failed.
// Reasons like sold_out require a refund downstream.
func NewCheckoutFailedEvent(intent *CheckoutIntent, reason string) OutboxDraft {
	return newDraft(AggregateCheckout, intent.ID, EventCheckoutFailed, intent.CampaignID.String(), map[string]interface{}{
		"ref":               intent.Ref,
		"user_id":           intent.UserID.String(),
		"campaign_id":       intent.CampaignID.String(),
		"reason":            reason,
		"total_price_minor": intent.TotalPriceMinor,
		"currency":          intent.Currency,
		"refund_required":   reason == FailureSoldOut || reason == FailureUserLimit || reason == FailureAmountMismatch,
	})
}

// NewCheckoutRefundedEvent records an operator refund. Tickets are not reclaimed.
func NewCheckoutRefundedEvent(intent *CheckoutIntent, adminID uuid.UUID, note string) OutboxDraft {
	return newDraft(AggregateCheckout, intent.ID, EventCheckoutRefunded, intent.CampaignID.String(), map[string]interface{}{
		"ref":      intent.Ref,
		"admin_id": adminID.String(),
		"note":     note,
	})
}

// NewInstantWinAwardedEvent is emitted when a prize is bound to an intent.
func NewInstantWinAwardedEvent(intent *CheckoutIntent, prize *InstantWinPrize) OutboxDraft {
	return newDraft(AggregateCampaign, intent.CampaignID, EventInstantWinAwarded, intent.CampaignID.String(), map[string]interface{}{
		"ref":      intent.Ref,
		"user_id":  intent.UserID.String(),
		"prize_id": prize.ID.String(),
		"title":    prize.Title,
	})
}

// NewDrawCompletedEvent is emitted when a main draw winner is recorded.
func NewDrawCompletedEvent(w *Winner, ticketsSold int64) OutboxDraft {
	return newDraft(AggregateCampaign, w.CampaignID, EventDrawCompleted, w.CampaignID.String(), map[string]interface{}{
		"campaign_id":   w.CampaignID.String(),
		"user_id":       w.UserID.String(),
		"entry_id":      w.EntryID.String(),
		"ticket_number": w.TicketNumber,
		"tickets_sold":  ticketsSold,
		"prize_title":   w.PrizeTitle,
	})
}

// NewDrawExtendedEvent is emitted when a campaign without sales gets a grace period.
func NewDrawExtendedEvent(campaignID uuid.UUID, newEndAt time.Time) OutboxDraft {
	return newDraft(AggregateCampaign, campaignID, EventDrawExtended, campaignID.String(), map[string]interface{}{
		"campaign_id": campaignID.String(),
		"end_at":      newEndAt,
	})
}

// NewCampaignStatusEvent records a status transition.
func NewCampaignStatusEvent(campaignID uuid.UUID, from, to CampaignStatus) OutboxDraft {
	return newDraft(AggregateCampaign, campaignID, EventCampaignStatus, campaignID.String(), map[string]string{
		"campaign_id": campaignID.String(),
		"from":        string(from),
		"to":          string(to),
	})
}
