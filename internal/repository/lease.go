package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type leaseRepo struct{}

// NewLeaseRepository returns a pgx-backed LeaseRepository.
func NewLeaseRepository() LeaseRepository {
	return &leaseRepo{}
}

// Acquire inserts the lease row or takes over an expired one. A live lease held by
// another owner makes the upsert's WHERE false, so nothing is returned.
func (r *leaseRepo) Acquire(ctx context.Context, db DBTX, name, owner string, token uuid.UUID, ttl time.Duration) (*domain.Lease, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO job_leases (name, owner, token, acquired_at, expires_at)
		VALUES ($1, $2, $3, now(), now() + make_interval(secs => $4))
		ON CONFLICT (name) DO UPDATE
		SET owner = EXCLUDED.owner, token = EXCLUDED.token,
		    acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
		WHERE job_leases.expires_at <= now()
		RETURNING name, owner, token, expires_at`,
		name, owner, token, ttl.Seconds())
	lease, err := scanLease(row)
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return lease, nil
}

func (r *leaseRepo) Renew(ctx context.Context, db DBTX, l *domain.Lease, ttl time.Duration) (*domain.Lease, error) {
	row := db.QueryRow(ctx, `
		UPDATE job_leases SET expires_at = now() + make_interval(secs => $3)
		WHERE name = $1 AND token = $2 AND expires_at > now()
		RETURNING name, owner, token, expires_at`,
		l.Name, l.Token, ttl.Seconds())
	lease, err := scanLease(row)
	if err != nil {
		return nil, fmt.Errorf("renew lease %s: %w", l.Name, err)
	}
	return lease, nil
}

func (r *leaseRepo) Release(ctx context.Context, db DBTX, l *domain.Lease) error {
	_, err := db.Exec(ctx, `DELETE FROM job_leases WHERE name = $1 AND token = $2`, l.Name, l.Token)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.Name, err)
	}
	return nil
}

func scanLease(row pgx.Row) (*domain.Lease, error) {
	var l domain.Lease
	if err := row.Scan(&l.Name, &l.Owner, &l.Token, &l.ExpiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}
