//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/attaboy/giveaways/internal/auth"
	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/test/integration/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func campaignBody(slug string) map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"slug":               slug,
		"title":              "Weekend cash",
		"start_at":           now,
		"end_at":             now.Add(72 * time.Hour),
		"ticket_price_minor": 99,
		"currency":           "gbp",
		"prize_title":        "£1,000",
	}
}

func TestAdmin_CampaignLifecycle(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token := env.AdminToken(auth.RoleAdmin)

	resp := env.POST("/admin/campaigns", campaignBody("weekend-cash"), token)
	testutil.RequireStatus(t, resp, http.StatusCreated)
	var campaign struct {
		ID       uuid.UUID `json:"id"`
		Status   string    `json:"status"`
		Currency string    `json:"currency"`
	}
	testutil.DecodeJSON(t, resp, &campaign)
	assert.Equal(t, "draft", campaign.Status)
	assert.Equal(t, "GBP", campaign.Currency)

	resp = env.POST("/admin/campaigns", campaignBody("weekend-cash"), token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	testutil.AssertErrorCode(t, resp, domain.CodeConflict)

	// Drafts cannot be bought.
	resp = env.POST("/checkout/intents", map[string]interface{}{"campaign_id": campaign.ID, "qty": 1}, env.UserToken(uuid.New()))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	testutil.AssertErrorCode(t, resp, domain.CodeCampaignClosed)

	path := "/admin/campaigns/" + campaign.ID.String() + "/status"
	for _, step := range []struct {
		status string
		want   int
	}{
		{"live", http.StatusOK},
		{"draft", http.StatusConflict},
		{"paused", http.StatusOK},
		{"live", http.StatusOK},
		{"ended", http.StatusOK},
		{"live", http.StatusConflict},
		{"archived", http.StatusBadRequest},
	} {
		resp = env.AuthPATCH(path, map[string]string{"status": step.status}, token)
		assert.Equal(t, step.want, resp.StatusCode, "transition to %s", step.status)
		resp.Body.Close()
	}

	assert.GreaterOrEqual(t, testutil.OutboxEventCount(t, env, string(domain.EventCampaignStatus)), 4)
}

func TestAdmin_PrizesAndSnapshotRefresh(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token := env.AdminToken(auth.RoleAdmin)
	campaignID := env.CreateLiveCampaign(100, intPtr(50), nil)
	prizesPath := "/admin/campaigns/" + campaignID.String() + "/prizes"

	resp := env.POST(prizesPath, map[string]interface{}{"title": "Tablet", "unlock_ratio": "0.5"}, token)
	testutil.RequireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = env.POST(prizesPath, map[string]interface{}{"title": "Phone", "unlock_ratio": "1.2"}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	testutil.AssertErrorCode(t, resp, domain.CodeValidation)

	resp = env.AuthGET(prizesPath, env.AdminToken(auth.RoleViewer))
	testutil.RequireStatus(t, resp, http.StatusOK)
	var prizes []struct {
		Title string `json:"title"`
	}
	testutil.DecodeJSON(t, resp, &prizes)
	require.Len(t, prizes, 1)
	assert.Equal(t, "Tablet", prizes[0].Title)

	_, err := env.Pool.Exec(t.Context(), "DELETE FROM public_snapshots")
	require.NoError(t, err)

	resp = env.POST("/admin/campaigns/"+campaignID.String()+"/snapshot", nil, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 2, testutil.CountRows(t, env,
		"SELECT COUNT(*) FROM public_snapshots WHERE entity_id = $1", campaignID))
}

func TestAdmin_ViewerCannotWrite(t *testing.T) {
	env := testutil.NewTestEnv(t)
	viewer := env.AdminToken(auth.RoleViewer)

	resp := env.POST("/admin/campaigns", campaignBody("viewer-attempt"), viewer)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.GET("/admin/jobs/dead")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.AuthGET("/admin/jobs/dead", env.UserToken(uuid.New()))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.AuthGET("/admin/jobs/dead", viewer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAdmin_RecordRefund(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token := env.AdminToken(auth.RoleSuperAdmin)
	campaignID := env.CreateLiveCampaign(100, nil, nil)
	start := env.StartCheckout(env.UserToken(uuid.New()), campaignID, 2)

	// Only confirmed checkouts can be refunded.
	resp := env.POST("/admin/checkouts/"+start.Ref+"/refund", map[string]string{"note": "early"}, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	env.PayCheckout(start)

	resp = env.POST("/admin/checkouts/"+start.Ref+"/refund", map[string]string{"note": "customer request"}, token)
	testutil.RequireStatus(t, resp, http.StatusOK)
	var intent struct {
		State      string     `json:"state"`
		RefundedAt *time.Time `json:"refunded_at"`
	}
	testutil.DecodeJSON(t, resp, &intent)
	assert.Equal(t, "confirmed", intent.State)
	assert.NotNil(t, intent.RefundedAt)

	// Tickets stay allocated; the refund is a bookkeeping record.
	assert.Equal(t, int64(2), testutil.TicketsSold(t, env, campaignID))
	assert.Equal(t, 1, testutil.OutboxEventCount(t, env, string(domain.EventCheckoutRefunded)))

	resp = env.POST("/admin/checkouts/"+start.Ref+"/refund", nil, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestAdmin_DisabledAdminRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, err := env.JWTMgr.GenerateToken(auth.RealmAdmin, uuid.New(), "off@test.com", auth.RoleAdmin, false)
	require.NoError(t, err)

	resp := env.AuthGET("/admin/jobs/dead", token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}
