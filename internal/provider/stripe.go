package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeAPIBase = "https://api.stripe.com"

// Stripe webhook event types handled by the checkout flow.
const (
	StripeSessionCompleted             = "checkout.session.completed"
	StripeSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	StripeSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	StripeSessionExpired               = "checkout.session.expired"
)

// StripeProvider wraps Stripe API operations.
type StripeProvider struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

// NewStripeProvider creates a Stripe provider.
func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       stripeAPIBase,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL points the provider at another API host (stripe-mock, tests).
func (s *StripeProvider) WithBaseURL(baseURL string) *StripeProvider {
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// Configured reports whether API calls can be made.
func (s *StripeProvider) Configured() bool {
	return s.secretKey != ""
}

// CheckoutSession represents a Stripe checkout session response.
type CheckoutSession struct {
	ID                string `json:"id"`
	URL               string `json:"url"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	PaymentIntent     string `json:"payment_intent"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	ClientReferenceID string `json:"client_reference_id"`
}

// SessionRequest describes a ticket purchase to open a hosted checkout for.
type SessionRequest struct {
	Ref             string
	ProductName     string
	UnitAmountMinor int64
	Qty             int
	Currency        string
	SuccessURL      string
	CancelURL       string
}

// StripeWebhookEvent represents a parsed Stripe webhook event.
type StripeWebhookEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// CheckoutSessionData is the nested data.object from a checkout.session.* event.
type CheckoutSessionData struct {
	ID                string `json:"id"`
	PaymentIntent     string `json:"payment_intent"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	ClientReferenceID string `json:"client_reference_id"`
}

// CreateCheckoutSession opens a hosted checkout. client_reference_id carries
// our checkout ref so webhooks can be matched back to the intent.
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, r SessionRequest) (*CheckoutSession, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("stripe secret key not configured")
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", r.Ref)
	form.Set("success_url", r.SuccessURL)
	form.Set("cancel_url", r.CancelURL)
	form.Set("line_items[0][price_data][currency]", strings.ToLower(r.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(r.UnitAmountMinor, 10))
	form.Set("line_items[0][price_data][product_data][name]", r.ProductName)
	form.Set("line_items[0][quantity]", strconv.Itoa(r.Qty))
	form.Set("metadata[checkout_ref]", r.Ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", "checkout-"+r.Ref)

	var session CheckoutSession
	if err := s.do(req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RetrieveCheckoutSession fetches a session by id.
func (s *StripeProvider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("stripe secret key not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var session CheckoutSession
	if err := s.do(req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Verify implements Verifier. ref is the checkout session id.
func (s *StripeProvider) Verify(ctx context.Context, ref string) (*Verification, error) {
	session, err := s.RetrieveCheckoutSession(ctx, ref)
	if err != nil {
		return nil, err
	}
	return SessionVerification(session.Status, session.PaymentStatus, session.PaymentIntent,
		session.AmountTotal, session.Currency, session.ClientReferenceID), nil
}

// SessionVerification maps Stripe's session status pair onto a Verification.
func SessionVerification(status, paymentStatus, paymentIntent string, amount int64, currency, reference string) *Verification {
	v := &Verification{
		ProviderPaymentID: paymentIntent,
		AmountMinor:       amount,
		Currency:          strings.ToUpper(currency),
		Reference:         reference,
	}
	switch {
	case paymentStatus == "paid" || paymentStatus == "no_payment_required":
		v.Status = PaymentPaid
	case status == "expired":
		v.Status = PaymentFailed
		v.Reason = "session expired"
	default:
		v.Status = PaymentPending
	}
	return v
}

func (s *StripeProvider) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("stripe api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stripe error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode stripe response: %w", err)
	}
	return nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
// Returns the parsed event if valid.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, sigHeader string) (*StripeWebhookEvent, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret not configured")
	}

	// Stripe-Signature: t=timestamp,v1=signature[,v1=...]
	parts := strings.Split(sigHeader, ",")
	var timestamp string
	var signatures []string
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return nil, fmt.Errorf("invalid signature header format")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	if time.Now().Unix()-ts > 300 {
		return nil, fmt.Errorf("webhook timestamp too old")
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("invalid webhook signature")
	}

	var event StripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &event, nil
}

// ParseCheckoutSessionData extracts checkout session data from a webhook event.
func ParseCheckoutSessionData(data json.RawMessage) (*CheckoutSessionData, error) {
	var wrapper struct {
		Object CheckoutSessionData `json:"object"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse checkout session data: %w", err)
	}
	return &wrapper.Object, nil
}
