package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventCheckoutCreated   EventType = "giveaway.checkout.created"
	EventCheckoutConfirmed EventType = "giveaway.checkout.confirmed"
	EventCheckoutFailed    EventType = "giveaway.checkout.failed"
	EventCheckoutRefunded  EventType = "giveaway.checkout.refunded"
	EventInstantWinAwarded EventType = "giveaway.instantwin.awarded"
	EventDrawCompleted     EventType = "giveaway.draw.completed"
	EventDrawExtended      EventType = "giveaway.draw.extended"
	EventCampaignStatus    EventType = "giveaway.campaign.status_changed"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateCheckout AggregateType = "checkout"
	AggregateCampaign AggregateType = "campaign"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRow is an outbox draft plus its sequence id, as read by the poller.
type OutboxRow struct {
	SeqID int64
	OutboxDraft
}
