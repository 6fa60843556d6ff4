package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyWebhookSignature_Valid(t *testing.T) {
	secret := "whsec_test_secret"
	p := NewStripeProvider("", secret)

	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{}}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	// Compute valid signature
	signedPayload := ts + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	sig := hex.EncodeToString(mac.Sum(nil))

	sigHeader := fmt.Sprintf("t=%s,v1=%s", ts, sig)

	event, err := p.VerifyWebhookSignature(payload, sigHeader)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ID)
	assert.Equal(t, "checkout.session.completed", event.Type)
}

func TestVerifyWebhookSignature_InvalidSignature(t *testing.T) {
	p := NewStripeProvider("", "whsec_test_secret")

	payload := []byte(`{"id":"evt_123","type":"test"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())
	sigHeader := fmt.Sprintf("t=%s,v1=invalid_signature", ts)

	_, err := p.VerifyWebhookSignature(payload, sigHeader)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid webhook signature")
}

func TestVerifyWebhookSignature_ExpiredTimestamp(t *testing.T) {
	secret := "whsec_test_secret"
	p := NewStripeProvider("", secret)

	payload := []byte(`{"id":"evt_123","type":"test"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix()-600) // 10 minutes ago

	signedPayload := ts + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	sig := hex.EncodeToString(mac.Sum(nil))

	sigHeader := fmt.Sprintf("t=%s,v1=%s", ts, sig)

	_, err := p.VerifyWebhookSignature(payload, sigHeader)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp too old")
}

func TestVerifyWebhookSignature_MissingHeader(t *testing.T) {
	p := NewStripeProvider("", "whsec_test_secret")
	_, err := p.VerifyWebhookSignature([]byte(`{}`), "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid signature header format")
}

func TestSessionVerification(t *testing.T) {
	tests := []struct {
		name          string
		status        string
		paymentStatus string
		want          PaymentStatus
	}{
		{"paid", "complete", "paid", PaymentPaid},
		{"free", "complete", "no_payment_required", PaymentPaid},
		{"open unpaid", "open", "unpaid", PaymentPending},
		{"complete async unpaid", "complete", "unpaid", PaymentPending},
		{"expired", "expired", "unpaid", PaymentFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := SessionVerification(tt.status, tt.paymentStatus, "pi_1", 1500, "gbp", "gw_ref")
			assert.Equal(t, tt.want, v.Status)
			assert.Equal(t, "GBP", v.Currency)
			assert.Equal(t, int64(1500), v.AmountMinor)
			assert.Equal(t, "gw_ref", v.Reference)
		})
	}
}

func TestStripeVerify_RetrievesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/checkout/sessions/cs_test_1", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","status":"complete","payment_status":"paid",
			"payment_intent":"pi_9","amount_total":2500,"currency":"usd","client_reference_id":"gw_1"}`))
	}))
	defer srv.Close()

	p := NewStripeProvider("sk_test", "").WithBaseURL(srv.URL)
	v, err := p.Verify(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, v.Status)
	assert.Equal(t, "pi_9", v.ProviderPaymentID)
	assert.Equal(t, int64(2500), v.AmountMinor)
	assert.Equal(t, "USD", v.Currency)
	assert.Equal(t, "gw_1", v.Reference)
}

func TestStripeVerify_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"No such checkout.session"}}`))
	}))
	defer srv.Close()

	p := NewStripeProvider("sk_test", "").WithBaseURL(srv.URL)
	_, err := p.Verify(context.Background(), "cs_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestCreateCheckoutSession_SendsReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "gw_42", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "3", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "250", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "eur", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "checkout-gw_42", r.Header.Get("Idempotency-Key"))
		_, _ = w.Write([]byte(`{"id":"cs_new","url":"https://checkout.stripe.test/cs_new"}`))
	}))
	defer srv.Close()

	p := NewStripeProvider("sk_test", "").WithBaseURL(srv.URL)
	session, err := p.CreateCheckoutSession(context.Background(), SessionRequest{
		Ref: "gw_42", ProductName: "Summer car giveaway", UnitAmountMinor: 250, Qty: 3,
		Currency: "EUR", SuccessURL: "https://example.test/ok", CancelURL: "https://example.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_new", session.ID)
	assert.Equal(t, "https://checkout.stripe.test/cs_new", session.URL)
}

func TestCreateCheckoutSession_NotConfigured(t *testing.T) {
	_, err := NewStripeProvider("", "").CreateCheckoutSession(context.Background(), SessionRequest{Ref: "gw_1", Qty: 1})
	assert.Error(t, err)
}

func TestParseCheckoutSessionData(t *testing.T) {
	data := json.RawMessage(`{"object":{"id":"cs_1","payment_status":"paid","client_reference_id":"gw_7","amount_total":900,"currency":"gbp"}}`)
	s, err := ParseCheckoutSessionData(data)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", s.ID)
	assert.Equal(t, "paid", s.PaymentStatus)
	assert.Equal(t, "gw_7", s.ClientReferenceID)
}
