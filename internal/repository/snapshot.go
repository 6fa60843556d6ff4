package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type snapshotRepo struct{}

// NewSnapshotRepository returns a pgx-backed SnapshotRepository.
func NewSnapshotRepository() SnapshotRepository {
	return &snapshotRepo{}
}

func (r *snapshotRepo) Replace(ctx context.Context, db DBTX, s domain.Snapshot) error {
	_, err := db.Exec(ctx, `
		DELETE FROM public_snapshots WHERE entity = $1 AND entity_id = $2 AND kind = $3`,
		string(s.Entity), s.EntityID, string(s.Kind))
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO public_snapshots (entity, entity_id, kind, payload, generated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(s.Entity), s.EntityID, string(s.Kind), s.Payload, s.GeneratedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepo) Find(ctx context.Context, db DBTX, entity domain.SnapshotEntity, entityID uuid.UUID, kind domain.SnapshotKind) (*domain.Snapshot, error) {
	var s domain.Snapshot
	err := db.QueryRow(ctx, `
		SELECT entity, entity_id, kind, payload, generated_at
		FROM public_snapshots
		WHERE entity = $1 AND entity_id = $2 AND kind = $3`,
		string(entity), entityID, string(kind),
	).Scan(&s.Entity, &s.EntityID, &s.Kind, &s.Payload, &s.GeneratedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return &s, nil
}
