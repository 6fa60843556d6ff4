package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/handler"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RefundRecorder records out-of-band refunds.
type RefundRecorder interface {
	RecordRefund(ctx context.Context, ref string, adminID uuid.UUID, note string) (*domain.CheckoutIntent, error)
}

// CheckoutAdminHandler handles admin actions on checkout intents.
type CheckoutAdminHandler struct {
	refunds RefundRecorder
}

// NewCheckoutAdminHandler creates a new CheckoutAdminHandler.
func NewCheckoutAdminHandler(refunds RefundRecorder) *CheckoutAdminHandler {
	return &CheckoutAdminHandler{refunds: refunds}
}

// RecordRefund handles POST /admin/checkouts/{ref}/refund. Ticket numbers are
// not reclaimed; the intent is only marked refunded.
func (h *CheckoutAdminHandler) RecordRefund(w http.ResponseWriter, r *http.Request) {
	adminID, err := handler.SubjectID(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	var input struct {
		Note string `json:"note"`
	}
	if err := handler.DecodeOptionalJSON(r, &input); err != nil {
		handler.RespondInvalidBody(w)
		return
	}

	intent, err := h.refunds.RecordRefund(r.Context(), chi.URLParam(r, "ref"), adminID, strings.TrimSpace(input.Note))
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, intent)
}
