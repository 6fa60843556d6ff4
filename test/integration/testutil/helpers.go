//go:build integration

package testutil

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/attaboy/giveaways/internal/auth"
	"github.com/google/uuid"
)

// UserToken generates a JWT for a storefront user.
func (env *TestEnv) UserToken(userID uuid.UUID) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmUser, userID, "user@test.com", "", true)
	if err != nil {
		env.t.Fatalf("UserToken: %v", err)
	}
	return token
}

// AdminToken generates a JWT for an enabled admin user with the given role.
func (env *TestEnv) AdminToken(role string) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmAdmin, uuid.New(), "admin@test.com", role, true)
	if err != nil {
		env.t.Fatalf("AdminToken: %v", err)
	}
	return token
}

// NewRequest builds a JSON request against the test server.
func (env *TestEnv) NewRequest(method, path string, body interface{}, token string) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, env.Server.URL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Do sends a request without failing the test, so it is safe from goroutines.
func (env *TestEnv) Do(method, path string, body interface{}, token string) (*http.Response, error) {
	req, err := env.NewRequest(method, path, body, token)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

func (env *TestEnv) mustDo(method, path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	resp, err := env.Do(method, path, body, token)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	return env.mustDo(http.MethodGet, path, nil, "")
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.mustDo(http.MethodPost, path, body, token)
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.mustDo(http.MethodGet, path, nil, token)
}

// AuthPATCH performs an authenticated PATCH request.
func (env *TestEnv) AuthPATCH(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.mustDo(http.MethodPatch, path, body, token)
}

// RawPOST posts body verbatim with the given headers.
func (env *TestEnv) RawPOST(path string, body []byte, headers map[string]string) *http.Response {
	env.t.Helper()
	resp, err := env.rawPOST(path, body, headers)
	if err != nil {
		env.t.Fatalf("RawPOST %s: %v", path, err)
	}
	return resp
}

func (env *TestEnv) rawPOST(path string, body []byte, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return http.DefaultClient.Do(req)
}

// CreateLiveCampaign creates a campaign through the admin API and publishes it.
func (env *TestEnv) CreateLiveCampaign(priceMinor int64, maxTotal, maxPerUser *int) uuid.UUID {
	env.t.Helper()
	admin := env.AdminToken(auth.RoleAdmin)
	now := time.Now()

	resp := env.POST("/admin/campaigns", map[string]interface{}{
		"slug":                 "it-" + uuid.NewString()[:8],
		"title":                "Integration giveaway",
		"start_at":             now.Add(-time.Hour),
		"end_at":               now.Add(24 * time.Hour),
		"ticket_price_minor":   priceMinor,
		"currency":             "GBP",
		"max_tickets_total":    maxTotal,
		"max_tickets_per_user": maxPerUser,
		"prize_title":          "Car",
	}, admin)
	var campaign struct {
		ID uuid.UUID `json:"id"`
	}
	RequireStatus(env.t, resp, http.StatusCreated)
	DecodeJSON(env.t, resp, &campaign)

	resp = env.AuthPATCH("/admin/campaigns/"+campaign.ID.String()+"/status",
		map[string]string{"status": "live"}, admin)
	RequireStatus(env.t, resp, http.StatusOK)
	resp.Body.Close()
	return campaign.ID
}

// CheckoutStart mirrors the create-intent response.
type CheckoutStart struct {
	Ref             string `json:"ref"`
	State           string `json:"state"`
	Qty             int    `json:"qty"`
	TotalPriceMinor int64  `json:"total_price_minor"`
	Currency        string `json:"currency"`
	Provider        string `json:"provider"`
}

// StartCheckout creates a pending intent for the user.
func (env *TestEnv) StartCheckout(token string, campaignID uuid.UUID, qty int) CheckoutStart {
	env.t.Helper()
	resp := env.POST("/checkout/intents", map[string]interface{}{
		"campaign_id": campaignID,
		"qty":         qty,
	}, token)
	RequireStatus(env.t, resp, http.StatusCreated)
	var start CheckoutStart
	DecodeJSON(env.t, resp, &start)
	return start
}

// StripeSessionEvent builds a checkout.session.* event body for a checkout.
func StripeSessionEvent(eventType string, start CheckoutStart, paymentStatus string) []byte {
	event := map[string]interface{}{
		"id":   "evt_" + uuid.NewString()[:12],
		"type": eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":                  "cs_" + start.Ref,
				"payment_intent":      "pi_" + start.Ref,
				"amount_total":        start.TotalPriceMinor,
				"currency":            start.Currency,
				"status":              "complete",
				"payment_status":      paymentStatus,
				"client_reference_id": start.Ref,
			},
		},
	}
	data, _ := json.Marshal(event)
	return data
}

// DeliverStripeEvent posts a correctly signed webhook. Safe from goroutines.
func (env *TestEnv) DeliverStripeEvent(payload []byte) (*http.Response, error) {
	return env.rawPOST("/webhooks/stripe", payload, map[string]string{
		"Content-Type":     "application/json",
		"Stripe-Signature": StripeWebhookSignature(payload),
	})
}

// PayCheckout marks the checkout paid through a signed webhook.
func (env *TestEnv) PayCheckout(start CheckoutStart) {
	env.t.Helper()
	resp, err := env.DeliverStripeEvent(StripeSessionEvent("checkout.session.completed", start, "paid"))
	if err != nil {
		env.t.Fatalf("PayCheckout %s: %v", start.Ref, err)
	}
	RequireStatus(env.t, resp, http.StatusOK)
	resp.Body.Close()
}

// StripeWebhookSignature generates a valid Stripe webhook signature for testing.
func StripeWebhookSignature(payload []byte) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	signedPayload := ts + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(TestStripeWebhookSecret))
	mac.Write([]byte(signedPayload))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%s,v1=%s", ts, sig)
}
