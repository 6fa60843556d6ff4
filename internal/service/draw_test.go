package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/settlement"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeCampaign moves a campaign's end into the past.
func (h *harness) closeCampaign(id uuid.UUID, ago time.Duration) domain.Campaign {
	c := h.store.Campaign(id)
	c.EndAt = time.Now().Add(-ago)
	return h.store.AddCampaign(c)
}

func TestRunDue_NothingToDo(t *testing.T) {
	h := newHarness(t)
	h.liveCampaign(nil, nil)

	summary, err := h.draws.RunDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusNothingToDo, summary.Status)
	assert.Zero(t, summary.Processed)
	assert.Empty(t, summary.Errors)
}

func TestRunDue_ExtendsCampaignWithoutEntries(t *testing.T) {
	h := newHarness(t)
	c := h.closeCampaign(h.liveCampaign(nil, nil).ID, time.Minute)

	summary, err := h.draws.RunDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusOK, summary.Status)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Extended)
	assert.Zero(t, summary.Ended)

	after := h.store.Campaign(c.ID)
	assert.Equal(t, domain.CampaignLive, after.Status)
	assert.True(t, after.EndAt.Equal(c.EndAt.Add(7*24*time.Hour)), "end_at moved by exactly seven days")
	assert.Nil(t, h.store.Winner(c.ID))
	assert.Contains(t, h.store.EventTypes(), domain.EventDrawExtended)

	again, err := h.draws.RunDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusNothingToDo, again.Status)
}

func TestRunDue_DrawsWinnerDeterministically(t *testing.T) {
	h := newHarness(t)
	c := h.liveCampaign(nil, nil)
	h.buy(t, c, uuid.New(), 2)
	h.buy(t, c, uuid.New(), 5)
	h.buy(t, c, uuid.New(), 1)
	h.closeCampaign(c.ID, time.Minute)

	entries := h.store.EntriesFor(c.ID)
	sold := settlement.TicketsSold(entries)
	require.Equal(t, int64(8), sold)
	r, err := settlement.DrawPosition(context.Background(), settlement.NewSeededSource(42), sold)
	require.NoError(t, err)
	want, err := settlement.SelectWinner(entries, r)
	require.NoError(t, err)

	summary, err := h.draws.RunDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Ended)
	assert.Empty(t, summary.Errors)

	w := h.store.Winner(c.ID)
	require.NotNil(t, w)
	assert.Equal(t, want.Entry.ID, w.EntryID)
	assert.Equal(t, want.Entry.UserID, w.UserID)
	assert.Equal(t, r, w.TicketNumber, "allocations follow entry order, so the ticket is the draw position")
	assert.Equal(t, "Car", w.PrizeTitle)
	assert.Equal(t, domain.CampaignEnded, h.store.Campaign(c.ID).Status)

	types := h.store.EventTypes()
	assert.Contains(t, types, domain.EventDrawCompleted)
	assert.Contains(t, types, domain.EventCampaignStatus)
	assert.Equal(t, 3, h.store.SnapshotCount(), "campaign list, campaign detail and winner detail")
}

func TestRunDue_NeverDrawsTwice(t *testing.T) {
	h := newHarness(t)
	c := h.liveCampaign(nil, nil)
	h.buy(t, c, uuid.New(), 3)
	h.closeCampaign(c.ID, time.Minute)

	_, err := h.draws.RunDue(context.Background(), time.Now())
	require.NoError(t, err)
	first := h.store.Winner(c.ID)
	require.NotNil(t, first)

	// A campaign that is live again despite having a winner is only closed.
	reopened := h.store.Campaign(c.ID)
	reopened.Status = domain.CampaignLive
	h.store.AddCampaign(reopened)

	summary, err := h.draws.RunDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Ended)
	assert.Equal(t, first, h.store.Winner(c.ID))
	assert.Equal(t, domain.CampaignEnded, h.store.Campaign(c.ID).Status)
}

func TestRunDue_LockedByAnotherWorker(t *testing.T) {
	h := newHarness(t)
	c := h.closeCampaign(h.liveCampaign(nil, nil).ID, time.Minute)

	lease, err := h.leases.Acquire(context.Background(), MainDrawLease, "other-worker", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)

	summary, err := h.draws.RunDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusLocked, summary.Status)
	assert.True(t, h.store.Campaign(c.ID).EndAt.Equal(c.EndAt))

	require.NoError(t, h.leases.Release(context.Background(), lease))
	summary, err = h.draws.RunDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Extended)
}

func TestRunDue_ErrorDoesNotStopBatch(t *testing.T) {
	h := newHarness(t)
	sold := h.liveCampaign(nil, nil)
	h.buy(t, sold, uuid.New(), 2)
	h.closeCampaign(sold.ID, 2*time.Hour)
	empty := h.closeCampaign(h.liveCampaign(nil, nil).ID, time.Hour)

	h.store.Fail("winners.Insert", errors.New("constraint check failed"))
	summary, err := h.draws.RunDue(context.Background(), time.Now())
	require.NoError(t, err)
	h.store.Fail("winners.Insert", nil)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Extended)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, sold.ID.String(), summary.Errors[0].ID)

	assert.Equal(t, domain.CampaignLive, h.store.Campaign(sold.ID).Status)
	assert.Nil(t, h.store.Winner(sold.ID))
	assert.True(t, h.store.Campaign(empty.ID).EndAt.After(time.Now()))
}
