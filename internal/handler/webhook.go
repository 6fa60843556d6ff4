package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

// StripeWebhookProcessor consumes verified Stripe events.
type StripeWebhookProcessor interface {
	HandleStripeWebhook(ctx context.Context, payload []byte, sigHeader string) error
}

// WebhookHandler handles Stripe webhook callbacks.
type WebhookHandler struct {
	processor StripeWebhookProcessor
	logger    *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(processor StripeWebhookProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, logger: logger}
}

// HandleStripeWebhook handles POST /webhooks/stripe.
// The raw body is needed for signature verification.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.Warn("missing Stripe-Signature header")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// A non-2xx response makes Stripe redeliver the event.
	if err := h.processor.HandleStripeWebhook(r.Context(), body, sigHeader); err != nil {
		h.logger.Error("process stripe webhook", "error", err)
		RespondError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
