package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/jobs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCampaignParams() domain.CreateCampaignParams {
	now := time.Now()
	total := 500
	return domain.CreateCampaignParams{
		Slug:             "summer-car",
		Title:            "Summer car giveaway",
		StartAt:          now,
		EndAt:            now.Add(14 * 24 * time.Hour),
		TicketPriceMinor: 199,
		Currency:         "gbp",
		MaxTicketsTotal:  &total,
		PrizeTitle:       "Hatchback",
	}
}

func TestAdmin_CreateCampaign(t *testing.T) {
	h := newHarness(t)

	c, err := h.admin.CreateCampaign(context.Background(), validCampaignParams())
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignDraft, c.Status)
	assert.Equal(t, "GBP", c.Currency)
	assert.Equal(t, 2, h.store.SnapshotCount())

	_, err = h.admin.CreateCampaign(context.Background(), validCampaignParams())
	assertCode(t, err, domain.CodeConflict)

	bad := validCampaignParams()
	bad.Slug = "Not A Slug"
	_, err = h.admin.CreateCampaign(context.Background(), bad)
	assertCode(t, err, domain.CodeValidation)

	bad = validCampaignParams()
	bad.EndAt = bad.StartAt
	_, err = h.admin.CreateCampaign(context.Background(), bad)
	assertCode(t, err, domain.CodeValidation)
}

func TestAdmin_UpdateCampaignStatus(t *testing.T) {
	h := newHarness(t)
	c, err := h.admin.CreateCampaign(context.Background(), validCampaignParams())
	require.NoError(t, err)

	live, err := h.admin.UpdateCampaignStatus(context.Background(), c.ID, domain.CampaignLive)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignLive, live.Status)
	assert.Equal(t, domain.CampaignLive, h.store.Campaign(c.ID).Status)
	assert.Contains(t, h.store.EventTypes(), domain.EventCampaignStatus)

	_, err = h.admin.UpdateCampaignStatus(context.Background(), c.ID, domain.CampaignDraft)
	assertCode(t, err, domain.CodeConflict)

	_, err = h.admin.UpdateCampaignStatus(context.Background(), c.ID, domain.CampaignPaused)
	require.NoError(t, err)
	_, err = h.admin.UpdateCampaignStatus(context.Background(), c.ID, domain.CampaignEnded)
	require.NoError(t, err)
	_, err = h.admin.UpdateCampaignStatus(context.Background(), c.ID, domain.CampaignLive)
	assertCode(t, err, domain.CodeConflict)

	_, err = h.admin.UpdateCampaignStatus(context.Background(), uuid.New(), domain.CampaignLive)
	assertCode(t, err, domain.CodeNotFound)
}

func TestAdmin_Prizes(t *testing.T) {
	h := newHarness(t)
	c := h.liveCampaign(intPtr(100), nil)
	ratio := decimal.RequireFromString("0.25")

	prize, err := h.admin.CreatePrize(context.Background(), c.ID, domain.CreatePrizeParams{Title: "Tablet", UnlockRatio: &ratio})
	require.NoError(t, err)
	assert.Equal(t, c.ID, prize.CampaignID)

	tooHigh := decimal.RequireFromString("1.5")
	_, err = h.admin.CreatePrize(context.Background(), c.ID, domain.CreatePrizeParams{Title: "Phone", UnlockRatio: &tooHigh})
	assertCode(t, err, domain.CodeValidation)
	_, err = h.admin.CreatePrize(context.Background(), c.ID, domain.CreatePrizeParams{Title: "  "})
	assertCode(t, err, domain.CodeValidation)
	_, err = h.admin.CreatePrize(context.Background(), uuid.New(), domain.CreatePrizeParams{Title: "Phone"})
	assertCode(t, err, domain.CodeNotFound)

	prizes, err := h.admin.ListPrizes(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, prizes, 1)
	assert.True(t, prizes[0].UnlockRatio.Equal(ratio))

	none, err := h.admin.ListPrizes(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestAdmin_RefreshSnapshots(t *testing.T) {
	h := newHarness(t)
	c := h.liveCampaign(nil, nil)

	require.NoError(t, h.admin.RefreshSnapshots(context.Background(), c.ID))
	assert.Equal(t, 2, h.store.SnapshotCount())

	err := h.admin.RefreshSnapshots(context.Background(), uuid.New())
	assertCode(t, err, domain.CodeNotFound)
}

// --- job handlers ---

func newTestRunner(h *harness) *jobs.Runner {
	runner := jobs.NewRunner(h.queue, "test-runner", time.Minute, 10, h.logger)
	RegisterJobHandlers(runner, h.checkout, h.draws, h.pub, 24*time.Hour, h.logger)
	return runner
}

func TestJobHandlers_SnapshotRefresh(t *testing.T) {
	h := newHarness(t)
	c := h.liveCampaign(nil, nil)
	runner := newTestRunner(h)

	_, err := h.queue.Enqueue(context.Background(), nil, domain.JobKindSnapshotRefresh,
		domain.SnapshotRefreshPayload{CampaignID: c.ID}, time.Now(), "")
	require.NoError(t, err)
	_, err = h.queue.Enqueue(context.Background(), nil, domain.JobKindSnapshotRefresh,
		domain.SnapshotRefreshPayload{CampaignID: uuid.New()}, time.Now(), "")
	require.NoError(t, err)
	_, err = h.queue.Enqueue(context.Background(), nil, domain.JobKindSnapshotRefresh,
		json.RawMessage(`"not an object"`), time.Now(), "")
	require.NoError(t, err)

	summary, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Claimed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Dead, "unknown campaigns and bad payloads are not retried")
	assert.Equal(t, 2, h.store.SnapshotCount())

	dead, err := h.admin.ListDeadJobs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, dead, 2)
}

func TestJobHandlers_DrawAndExpire(t *testing.T) {
	h := newHarness(t)
	c := h.closeCampaign(h.liveCampaign(nil, nil).ID, time.Minute)
	runner := newTestRunner(h)

	_, err := h.queue.Enqueue(context.Background(), nil, domain.JobKindDrawRun, struct{}{}, time.Now(), "draw.run")
	require.NoError(t, err)
	_, err = h.queue.Enqueue(context.Background(), nil, domain.JobKindCheckoutExpire, struct{}{}, time.Now(), "checkout.expire")
	require.NoError(t, err)

	summary, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Empty(t, summary.Errors)
	assert.True(t, h.store.Campaign(c.ID).EndAt.After(time.Now()), "empty campaign extended by the draw job")

	summary, err = runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusNothingToDo, summary.Status)
}
