//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// RequireStatus stops the test when the status differs, printing the body.
func RequireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, body)
	}
}

// AssertErrorCode checks that the response body contains the expected error code.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// CountRows runs a COUNT(*) query with the given arguments.
func CountRows(t *testing.T, env *TestEnv, query string, args ...interface{}) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	if err := env.Pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	return count
}

// TicketsSold sums entry quantities for a campaign.
func TicketsSold(t *testing.T, env *TestEnv, campaignID uuid.UUID) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var sold int64
	err := env.Pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(qty), 0) FROM entries WHERE campaign_id = $1", campaignID).Scan(&sold)
	if err != nil {
		t.Fatalf("TicketsSold: %v", err)
	}
	return sold
}

// IntentState returns the stored state and failure reason of a checkout.
func IntentState(t *testing.T, env *TestEnv, ref string) (state string, reason *string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := env.Pool.QueryRow(ctx,
		"SELECT state, failure_reason FROM checkout_intents WHERE ref = $1", ref).Scan(&state, &reason)
	if err != nil {
		t.Fatalf("IntentState: %v", err)
	}
	return state, reason
}

// OutboxEventCount counts outbox rows of one event type.
func OutboxEventCount(t *testing.T, env *TestEnv, eventType string) int {
	t.Helper()
	return CountRows(t, env, `SELECT COUNT(*) FROM event_outbox WHERE "eventType" = $1`, eventType)
}

// EndCampaignNow moves a campaign's end into the past so the draw picks it up.
func EndCampaignNow(t *testing.T, env *TestEnv, campaignID uuid.UUID) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := env.Pool.Exec(ctx,
		"UPDATE campaigns SET end_at = now() - interval '1 minute', start_at = now() - interval '2 hours' WHERE id = $1",
		campaignID)
	if err != nil {
		t.Fatalf("EndCampaignNow: %v", err)
	}
}
