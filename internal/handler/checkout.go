package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CheckoutAPI is the checkout service surface used by the user routes.
type CheckoutAPI interface {
	CreateIntent(ctx context.Context, p domain.CreateIntentParams) (*domain.CheckoutStart, error)
	GetIntent(ctx context.Context, ref string, userID uuid.UUID) (*domain.CheckoutIntent, error)
	ConfirmAndAward(ctx context.Context, p domain.ConfirmParams) (*domain.AwardPayload, error)
}

// CheckoutHandler handles checkout start and confirmation.
type CheckoutHandler struct {
	checkout CheckoutAPI
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(checkout CheckoutAPI) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

type createIntentRequest struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Qty        int       `json:"qty"`
	Provider   string    `json:"provider"`
}

// CreateIntent handles POST /checkout/intents.
func (h *CheckoutHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req createIntentRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondInvalidBody(w)
		return
	}
	if req.CampaignID == uuid.Nil {
		RespondError(w, domain.ErrValidation("campaign_id is required"))
		return
	}

	start, err := h.checkout.CreateIntent(r.Context(), domain.CreateIntentParams{
		UserID:         userID,
		CampaignID:     req.CampaignID,
		Qty:            req.Qty,
		Provider:       strings.ToLower(strings.TrimSpace(req.Provider)),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, start)
}

// GetIntent handles GET /checkout/intents/{ref}.
func (h *CheckoutHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	intent, err := h.checkout.GetIntent(r.Context(), chi.URLParam(r, "ref"), userID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, intent)
}

type confirmRequest struct {
	Provider        string `json:"provider"`
	VerificationRef string `json:"verification_ref"`
}

// Confirm handles POST /checkout/intents/{ref}/confirm. The body is optional.
func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req confirmRequest
	if err := DecodeOptionalJSON(r, &req); err != nil {
		RespondInvalidBody(w)
		return
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = "stripe"
	}

	payload, err := h.checkout.ConfirmAndAward(r.Context(), domain.ConfirmParams{
		Ref:             chi.URLParam(r, "ref"),
		UserID:          userID,
		Provider:        provider,
		VerificationRef: strings.TrimSpace(req.VerificationRef),
	})
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, payload)
}
