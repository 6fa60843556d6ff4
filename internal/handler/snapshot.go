package handler

import (
	"context"
	"net/http"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SnapshotReader serves published snapshots.
type SnapshotReader interface {
	Get(ctx context.Context, entity domain.SnapshotEntity, id uuid.UUID, kind domain.SnapshotKind) (*domain.Snapshot, error)
}

// SnapshotHandler serves the read-only campaign snapshots.
type SnapshotHandler struct {
	reader SnapshotReader
}

// NewSnapshotHandler creates a new SnapshotHandler.
func NewSnapshotHandler(reader SnapshotReader) *SnapshotHandler {
	return &SnapshotHandler{reader: reader}
}

// GetCampaignSnapshot handles GET /campaigns/{id}/snapshot?kind=list|detail.
func (h *SnapshotHandler) GetCampaignSnapshot(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, domain.SnapshotCampaign)
}

// GetWinnerSnapshot handles GET /campaigns/{id}/winner.
func (h *SnapshotHandler) GetWinnerSnapshot(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, domain.SnapshotWinner)
}

func (h *SnapshotHandler) serve(w http.ResponseWriter, r *http.Request, entity domain.SnapshotEntity) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid campaign id"))
		return
	}

	kind := domain.SnapshotKind(r.URL.Query().Get("kind"))
	switch kind {
	case "":
		kind = domain.SnapshotDetail
	case domain.SnapshotList, domain.SnapshotDetail:
	default:
		RespondError(w, domain.ErrValidation("kind must be list or detail"))
		return
	}
	if entity == domain.SnapshotWinner {
		kind = domain.SnapshotDetail
	}

	snap, err := h.reader.Get(r.Context(), entity, id, kind)
	if err != nil {
		RespondError(w, domain.ErrInternal("read snapshot", err))
		return
	}
	if snap == nil {
		RespondError(w, domain.ErrNotFound(string(entity)+" snapshot", id.String()))
		return
	}

	w.Header().Set("Last-Modified", snap.GeneratedAt.UTC().Format(http.TimeFormat))
	RespondJSON(w, http.StatusOK, snap)
}
