package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IntentState is the checkout intent state machine: pending → confirmed | failed.
type IntentState string

const (
	IntentPending   IntentState = "pending"
	IntentConfirmed IntentState = "confirmed"
	IntentFailed    IntentState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s IntentState) Terminal() bool {
	return s == IntentConfirmed || s == IntentFailed
}

// Failure reasons stored on failed intents.
const (
	FailureSoldOut               = "sold_out"
	FailureUserLimit             = "user_limit"
	FailurePaymentFailed         = "payment_failed"
	FailureAmountMismatch        = "amount_mismatch"
	FailureExpired               = "expired"
	FailureProviderSessionFailed = "provider_session_failed"
	FailureCampaignClosed        = "campaign_closed"
)

// MaxQtyPerCheckout bounds a single purchase.
const MaxQtyPerCheckout = 1000

// CheckoutIntent is a purchase request recorded before payment exists.
type CheckoutIntent struct {
	ID                uuid.UUID   `json:"id"`
	Ref               string      `json:"ref"`
	IdempotencyKey    string      `json:"-"`
	UserID            uuid.UUID   `json:"user_id"`
	CampaignID        uuid.UUID   `json:"campaign_id"`
	GiveawayID        uuid.UUID   `json:"giveaway_id"`
	Qty               int         `json:"qty"`
	TotalPriceMinor   int64       `json:"total_price_minor"`
	Currency          string      `json:"currency"`
	Provider          string      `json:"provider"`
	ProviderSessionID *string     `json:"provider_session_id,omitempty"`
	ProviderPaymentID *string     `json:"provider_payment_id,omitempty"`
	State             IntentState `json:"state"`
	FailureReason     *string     `json:"failure_reason,omitempty"`
	ConfirmedAt       *time.Time  `json:"confirmed_at,omitempty"`
	FailedAt          *time.Time  `json:"failed_at,omitempty"`
	RefundedAt        *time.Time  `json:"refunded_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// CreateIntentParams holds checkout-start input.
type CreateIntentParams struct {
	UserID         uuid.UUID
	CampaignID     uuid.UUID
	Qty            int
	Provider       string
	IdempotencyKey string
}

// ConfirmParams holds the input of a client-driven confirmation.
type ConfirmParams struct {
	Ref             string
	UserID          uuid.UUID
	Provider        string
	VerificationRef string
}

// CheckoutEvent is an audit row for an intent's lifecycle.
type CheckoutEvent struct {
	ID        int64           `json:"id"`
	IntentID  uuid.UUID       `json:"intent_id"`
	State     string          `json:"state"`
	Message   *string         `json:"message,omitempty"`
	RawData   json.RawMessage `json:"raw_data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// CheckoutEvent states beyond IntentState values.
const (
	CheckoutEventRefunded = "refunded"
)

// CheckoutStart is the response to checkout-start.
type CheckoutStart struct {
	Ref             string      `json:"ref"`
	State           IntentState `json:"state"`
	Qty             int         `json:"qty"`
	TotalPriceMinor int64       `json:"total_price_minor"`
	Currency        string      `json:"currency"`
	Provider        string      `json:"provider"`
	CheckoutURL     string      `json:"checkout_url,omitempty"`
}
