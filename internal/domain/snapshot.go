package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SnapshotEntity is the kind of object a snapshot row describes.
type SnapshotEntity string

const (
	SnapshotCampaign SnapshotEntity = "campaign"
	SnapshotWinner   SnapshotEntity = "winner"
)

// SnapshotKind selects the list-card or detail-page shape.
type SnapshotKind string

const (
	SnapshotList   SnapshotKind = "list"
	SnapshotDetail SnapshotKind = "detail"
)

// Snapshot is a denormalized, read-only view consumed by presentation.
type Snapshot struct {
	Entity      SnapshotEntity  `json:"entity"`
	EntityID    uuid.UUID       `json:"entity_id"`
	Kind        SnapshotKind    `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// CampaignStats aggregates sales for snapshot building.
type CampaignStats struct {
	TicketsSold int64 `json:"tickets_sold"`
	Entrants    int64 `json:"entrants"`
}
