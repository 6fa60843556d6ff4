package admin

import (
	"context"
	"net/http"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/handler"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CampaignAdmin is the admin service surface for campaigns and prizes.
type CampaignAdmin interface {
	CreateCampaign(ctx context.Context, params domain.CreateCampaignParams) (*domain.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id uuid.UUID, to domain.CampaignStatus) (*domain.Campaign, error)
	CreatePrize(ctx context.Context, campaignID uuid.UUID, params domain.CreatePrizeParams) (*domain.InstantWinPrize, error)
	ListPrizes(ctx context.Context, campaignID uuid.UUID) ([]domain.InstantWinPrize, error)
	RefreshSnapshots(ctx context.Context, campaignID uuid.UUID) error
}

// CampaignAdminHandler handles campaign management.
type CampaignAdminHandler struct {
	svc CampaignAdmin
}

// NewCampaignAdminHandler creates a new CampaignAdminHandler.
func NewCampaignAdminHandler(svc CampaignAdmin) *CampaignAdminHandler {
	return &CampaignAdminHandler{svc: svc}
}

// CreateCampaign handles POST /admin/campaigns.
func (h *CampaignAdminHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input domain.CreateCampaignParams
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondInvalidBody(w)
		return
	}

	c, err := h.svc.CreateCampaign(r.Context(), input)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusCreated, c)
}

// UpdateCampaignStatus handles PATCH /admin/campaigns/{id}/status.
func (h *CampaignAdminHandler) UpdateCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var input struct {
		Status domain.CampaignStatus `json:"status"`
	}
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondInvalidBody(w)
		return
	}
	switch input.Status {
	case domain.CampaignDraft, domain.CampaignLive, domain.CampaignPaused, domain.CampaignEnded:
	default:
		handler.RespondError(w, domain.ErrValidation("unknown status"))
		return
	}

	c, err := h.svc.UpdateCampaignStatus(r.Context(), id, input.Status)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, c)
}

// CreatePrize handles POST /admin/campaigns/{id}/prizes.
func (h *CampaignAdminHandler) CreatePrize(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var input domain.CreatePrizeParams
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondInvalidBody(w)
		return
	}

	prize, err := h.svc.CreatePrize(r.Context(), id, input)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusCreated, prize)
}

// ListPrizes handles GET /admin/campaigns/{id}/prizes.
func (h *CampaignAdminHandler) ListPrizes(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	prizes, err := h.svc.ListPrizes(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, prizes)
}

// RefreshSnapshot handles POST /admin/campaigns/{id}/snapshot.
func (h *CampaignAdminHandler) RefreshSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	if err := h.svc.RefreshSnapshots(r.Context(), id); err != nil {
		handler.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func campaignID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid campaign id"))
		return uuid.Nil, false
	}
	return id, true
}
