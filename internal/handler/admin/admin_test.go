package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attaboy/giveaways/internal/auth"
	"github.com/attaboy/giveaways/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdmin struct {
	campaigns map[uuid.UUID]*domain.Campaign
	prizes    []domain.InstantWinPrize
	refreshed []uuid.UUID
	refunded  map[string]uuid.UUID
	deadLimit int
}

func newStubAdmin() *stubAdmin {
	return &stubAdmin{campaigns: map[uuid.UUID]*domain.Campaign{}, refunded: map[string]uuid.UUID{}}
}

func (s *stubAdmin) CreateCampaign(_ context.Context, p domain.CreateCampaignParams) (*domain.Campaign, error) {
	if err := domain.ValidateCampaignParams(p); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	c := &domain.Campaign{ID: uuid.New(), Slug: p.Slug, Title: p.Title, Status: domain.CampaignDraft}
	s.campaigns[c.ID] = c
	return c, nil
}

func (s *stubAdmin) UpdateCampaignStatus(_ context.Context, id uuid.UUID, to domain.CampaignStatus) (*domain.Campaign, error) {
	c, ok := s.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound("campaign", id.String())
	}
	if !c.Status.CanTransition(to) {
		return nil, domain.ErrConflict("invalid transition")
	}
	c.Status = to
	return c, nil
}

func (s *stubAdmin) CreatePrize(_ context.Context, campaignID uuid.UUID, p domain.CreatePrizeParams) (*domain.InstantWinPrize, error) {
	if err := domain.ValidatePrizeParams(p); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	prize := domain.InstantWinPrize{ID: uuid.New(), CampaignID: campaignID, Title: p.Title, UnlockRatio: p.UnlockRatio}
	s.prizes = append(s.prizes, prize)
	return &prize, nil
}

func (s *stubAdmin) ListPrizes(context.Context, uuid.UUID) ([]domain.InstantWinPrize, error) {
	return s.prizes, nil
}

func (s *stubAdmin) RefreshSnapshots(_ context.Context, id uuid.UUID) error {
	s.refreshed = append(s.refreshed, id)
	return nil
}

func (s *stubAdmin) RecordRefund(_ context.Context, ref string, adminID uuid.UUID, _ string) (*domain.CheckoutIntent, error) {
	if _, done := s.refunded[ref]; done {
		return nil, domain.ErrConflict("already refunded")
	}
	s.refunded[ref] = adminID
	return &domain.CheckoutIntent{Ref: ref, State: domain.IntentConfirmed}, nil
}

func (s *stubAdmin) ListDeadJobs(_ context.Context, limit int) ([]domain.Job, error) {
	s.deadLimit = limit
	return []domain.Job{}, nil
}

func adminRouter(svc *stubAdmin, adminID uuid.UUID) http.Handler {
	campaigns := NewCampaignAdminHandler(svc)
	checkouts := NewCheckoutAdminHandler(svc)
	jobs := NewJobAdminHandler(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := &auth.Claims{Realm: auth.RealmAdmin, Role: auth.RoleAdmin, Enabled: true}
			claims.Subject = adminID.String()
			next.ServeHTTP(w, req.WithContext(auth.WithClaims(req.Context(), claims)))
		})
	})
	r.Post("/admin/campaigns", campaigns.CreateCampaign)
	r.Patch("/admin/campaigns/{id}/status", campaigns.UpdateCampaignStatus)
	r.Post("/admin/campaigns/{id}/prizes", campaigns.CreatePrize)
	r.Get("/admin/campaigns/{id}/prizes", campaigns.ListPrizes)
	r.Post("/admin/campaigns/{id}/snapshot", campaigns.RefreshSnapshot)
	r.Post("/admin/checkouts/{ref}/refund", checkouts.RecordRefund)
	r.Get("/admin/jobs/dead", jobs.ListDead)
	return r
}

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCampaignLifecycle(t *testing.T) {
	svc := newStubAdmin()
	h := adminRouter(svc, uuid.New())

	start := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	body, err := json.Marshal(domain.CreateCampaignParams{
		Slug: "winter-car", Title: "Winter car", StartAt: start, EndAt: start.Add(72 * time.Hour),
		TicketPriceMinor: 299, Currency: "GBP", PrizeTitle: "Hatchback",
	})
	require.NoError(t, err)

	w := send(h, http.MethodPost, "/admin/campaigns", string(body))
	require.Equal(t, http.StatusCreated, w.Code)
	var created domain.Campaign
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, domain.CampaignDraft, created.Status)

	path := "/admin/campaigns/" + created.ID.String()
	assert.Equal(t, http.StatusOK, send(h, http.MethodPatch, path+"/status", `{"status":"live"}`).Code)
	assert.Equal(t, http.StatusConflict, send(h, http.MethodPatch, path+"/status", `{"status":"draft"}`).Code)
	assert.Equal(t, http.StatusBadRequest, send(h, http.MethodPatch, path+"/status", `{"status":"archived"}`).Code)
	assert.Equal(t, http.StatusNotFound, send(h, http.MethodPatch, "/admin/campaigns/"+uuid.NewString()+"/status", `{"status":"live"}`).Code)
	assert.Equal(t, http.StatusBadRequest, send(h, http.MethodPatch, "/admin/campaigns/bad-id/status", `{"status":"live"}`).Code)

	assert.Equal(t, http.StatusBadRequest, send(h, http.MethodPost, "/admin/campaigns", `{"slug":"Bad Slug"}`).Code)
}

func TestPrizes(t *testing.T) {
	svc := newStubAdmin()
	h := adminRouter(svc, uuid.New())
	path := "/admin/campaigns/" + uuid.NewString() + "/prizes"

	w := send(h, http.MethodPost, path, `{"title":"Tablet","unlock_ratio":"0.5"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var prize domain.InstantWinPrize
	require.NoError(t, json.NewDecoder(w.Body).Decode(&prize))
	require.NotNil(t, prize.UnlockRatio)
	assert.Equal(t, "0.5", prize.UnlockRatio.String())

	assert.Equal(t, http.StatusBadRequest, send(h, http.MethodPost, path, `{"title":"Phone","unlock_ratio":"2"}`).Code)

	w = send(h, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	var prizes []domain.InstantWinPrize
	require.NoError(t, json.NewDecoder(w.Body).Decode(&prizes))
	assert.Len(t, prizes, 1)
}

func TestRefreshSnapshot(t *testing.T) {
	svc := newStubAdmin()
	h := adminRouter(svc, uuid.New())
	id := uuid.New()

	w := send(h, http.MethodPost, "/admin/campaigns/"+id.String()+"/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uuid.UUID{id}, svc.refreshed)
}

func TestRecordRefund(t *testing.T) {
	svc := newStubAdmin()
	adminID := uuid.New()
	h := adminRouter(svc, adminID)

	w := send(h, http.MethodPost, "/admin/checkouts/gw_abc/refund", `{"note":"chargeback"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, adminID, svc.refunded["gw_abc"])

	w = send(h, http.MethodPost, "/admin/checkouts/gw_abc/refund", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListDeadJobs(t *testing.T) {
	svc := newStubAdmin()
	h := adminRouter(svc, uuid.New())

	w := send(h, http.MethodGet, "/admin/jobs/dead?limit=25", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, 25, svc.deadLimit)

	assert.Equal(t, http.StatusBadRequest, send(h, http.MethodGet, "/admin/jobs/dead?limit=ten", "").Code)
}
