package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/repository"
	"github.com/google/uuid"
)

var (
	// ErrLeaseHeld means another owner holds an unexpired lease.
	ErrLeaseHeld = errors.New("lease held by another owner")
	// ErrLeaseLost means the lease expired and was taken before it could be renewed.
	ErrLeaseLost = errors.New("lease lost")
)

// LeaseManager hands out named, time-bounded exclusive leases. Ownership is
// proven by the token returned from Acquire.
type LeaseManager struct {
	db     repository.DBTX
	leases repository.LeaseRepository
	logger *slog.Logger
}

// NewLeaseManager creates a lease manager.
func NewLeaseManager(db repository.DBTX, leases repository.LeaseRepository, logger *slog.Logger) *LeaseManager {
	return &LeaseManager{db: db, leases: leases, logger: logger}
}

// Acquire takes the lease if it is free or expired. Nil, nil when held.
func (m *LeaseManager) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (*domain.Lease, error) {
	return m.leases.Acquire(ctx, m.db, name, owner, uuid.New(), ttl)
}

// Renew extends a held lease.
func (m *LeaseManager) Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) (*domain.Lease, error) {
	renewed, err := m.leases.Renew(ctx, m.db, lease, ttl)
	if err != nil {
		return nil, err
	}
	if renewed == nil {
		return nil, ErrLeaseLost
	}
	return renewed, nil
}

// Release gives the lease up. Releasing a lease already lost is a no-op.
func (m *LeaseManager) Release(ctx context.Context, lease *domain.Lease) error {
	return m.leases.Release(ctx, m.db, lease)
}

// WithLease runs fn while holding the named lease, renewing it every ttl/3.
// fn's context is cancelled if renewal fails. Returns ErrLeaseHeld when the
// lease could not be taken.
func (m *LeaseManager) WithLease(ctx context.Context, name, owner string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, err := m.Acquire(ctx, name, owner, ttl)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", name, err)
	}
	if lease == nil {
		return ErrLeaseHeld
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		current := lease
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				renewed, err := m.Renew(runCtx, current, ttl)
				if err != nil {
					if runCtx.Err() != nil {
						return
					}
					m.logger.Error("lease renewal failed", "lease", name, "error", err)
					cancel()
					return
				}
				current = renewed
			}
		}
	}()

	fnErr := fn(runCtx)
	cancel()
	<-done

	// Release with the parent context's values but not its cancellation.
	if err := m.Release(context.WithoutCancel(ctx), lease); err != nil {
		m.logger.Error("lease release failed", "lease", name, "error", err)
	}
	return fnErr
}
