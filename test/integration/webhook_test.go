//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/test/integration/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripeWebhook_MissingSignatureHeader(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.RawPOST("/webhooks/stripe", []byte(`{"type":"checkout.session.completed","data":{}}`),
		map[string]string{"Content-Type": "application/json"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.RawPOST("/webhooks/stripe", []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_test"}}}`),
		map[string]string{
			"Content-Type":     "application/json",
			"Stripe-Signature": "t=1234567890,v1=invalid_signature_here",
		})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	testutil.AssertErrorCode(t, resp, domain.CodeUnauthorized)
}

func TestStripeWebhook_UnknownEventAcknowledged(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp, err := env.DeliverStripeEvent([]byte(`{"id":"evt_1","type":"customer.created","data":{"object":{}}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStripeWebhook_UnknownCheckoutAcknowledged(t *testing.T) {
	env := testutil.NewTestEnv(t)

	ghost := testutil.CheckoutStart{Ref: "gw_missing", TotalPriceMinor: 100, Currency: "GBP"}
	resp, err := env.DeliverStripeEvent(testutil.StripeSessionEvent("checkout.session.completed", ghost, "paid"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStripeWebhook_UnpaidCompletionLeavesIntentPending(t *testing.T) {
	env := testutil.NewTestEnv(t)
	campaignID := env.CreateLiveCampaign(100, nil, nil)
	start := env.StartCheckout(env.UserToken(uuid.New()), campaignID, 1)

	resp, err := env.DeliverStripeEvent(testutil.StripeSessionEvent("checkout.session.completed", start, "unpaid"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	state, _ := testutil.IntentState(t, env, start.Ref)
	assert.Equal(t, "pending", state)

	// The delayed payment settles later.
	resp, err = env.DeliverStripeEvent(testutil.StripeSessionEvent("checkout.session.async_payment_succeeded", start, "paid"))
	require.NoError(t, err)
	resp.Body.Close()
	state, _ = testutil.IntentState(t, env, start.Ref)
	assert.Equal(t, "confirmed", state)
}

func TestStripeWebhook_ExpiredSessionFailsIntent(t *testing.T) {
	env := testutil.NewTestEnv(t)
	campaignID := env.CreateLiveCampaign(100, nil, nil)
	start := env.StartCheckout(env.UserToken(uuid.New()), campaignID, 1)

	resp, err := env.DeliverStripeEvent(testutil.StripeSessionEvent("checkout.session.expired", start, "unpaid"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	state, reason := testutil.IntentState(t, env, start.Ref)
	assert.Equal(t, "failed", state)
	require.NotNil(t, reason)
	assert.Equal(t, domain.FailureExpired, *reason)

	// A late completion for a failed checkout allocates nothing.
	env.PayCheckout(start)
	assert.Zero(t, testutil.TicketsSold(t, env, campaignID))
}

func TestStripeWebhook_AmountMismatchRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	campaignID := env.CreateLiveCampaign(100, nil, nil)
	start := env.StartCheckout(env.UserToken(uuid.New()), campaignID, 3)

	tampered := start
	tampered.TotalPriceMinor = 100
	resp, err := env.DeliverStripeEvent(testutil.StripeSessionEvent("checkout.session.completed", tampered, "paid"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	state, reason := testutil.IntentState(t, env, start.Ref)
	assert.Equal(t, "failed", state)
	require.NotNil(t, reason)
	assert.Equal(t, domain.FailureAmountMismatch, *reason)
	assert.Zero(t, testutil.TicketsSold(t, env, campaignID))
}

func TestHealth(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.GET("/health")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
