// Package repotest provides in-memory implementations of the repository
// interfaces for service and handler tests.
package repotest

import (
	"context"
	"sync"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type snapshotKey struct {
	entity domain.SnapshotEntity
	id     uuid.UUID
	kind   domain.SnapshotKind
}

type state struct {
	campaigns   map[uuid.UUID]domain.Campaign
	intents     map[uuid.UUID]domain.CheckoutIntent
	events      []domain.CheckoutEvent
	entries     []domain.Entry
	counters    map[uuid.UUID]domain.TicketCounter
	allocations map[uuid.UUID]domain.TicketAllocation
	prizes      []domain.InstantWinPrize
	awards      []domain.InstantWinAward
	winners     map[uuid.UUID]domain.Winner
	jobs        []domain.Job
	leases      map[string]domain.Lease
	snapshots   map[snapshotKey]domain.Snapshot
	outbox      []domain.OutboxRow
	seq         int64
}

func newState() *state {
	return &state{
		campaigns:   make(map[uuid.UUID]domain.Campaign),
		intents:     make(map[uuid.UUID]domain.CheckoutIntent),
		counters:    make(map[uuid.UUID]domain.TicketCounter),
		allocations: make(map[uuid.UUID]domain.TicketAllocation),
		winners:     make(map[uuid.UUID]domain.Winner),
		leases:      make(map[string]domain.Lease),
		snapshots:   make(map[snapshotKey]domain.Snapshot),
	}
}

func (s *state) clone() *state {
	c := &state{
		campaigns:   make(map[uuid.UUID]domain.Campaign, len(s.campaigns)),
		intents:     make(map[uuid.UUID]domain.CheckoutIntent, len(s.intents)),
		events:      append([]domain.CheckoutEvent(nil), s.events...),
		entries:     append([]domain.Entry(nil), s.entries...),
		counters:    make(map[uuid.UUID]domain.TicketCounter, len(s.counters)),
		allocations: make(map[uuid.UUID]domain.TicketAllocation, len(s.allocations)),
		prizes:      append([]domain.InstantWinPrize(nil), s.prizes...),
		awards:      append([]domain.InstantWinAward(nil), s.awards...),
		winners:     make(map[uuid.UUID]domain.Winner, len(s.winners)),
		jobs:        append([]domain.Job(nil), s.jobs...),
		leases:      make(map[string]domain.Lease, len(s.leases)),
		snapshots:   make(map[snapshotKey]domain.Snapshot, len(s.snapshots)),
		outbox:      append([]domain.OutboxRow(nil), s.outbox...),
		seq:         s.seq,
	}
	for k, v := range s.campaigns {
		c.campaigns[k] = v
	}
	for k, v := range s.intents {
		c.intents[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	for k, v := range s.allocations {
		c.allocations[k] = v
	}
	for k, v := range s.winners {
		c.winners[k] = v
	}
	for k, v := range s.leases {
		c.leases[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	return c
}

// Store is an in-memory database. Transactions are serialized and roll back
// by restoring a copy of the state taken at Begin.
type Store struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	st     *state
	faults map[string]error
	base   time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		st:     newState(),
		faults: make(map[string]error),
		base:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Fail makes the named operation return err until cleared with a nil err.
// Operation names are "<repo>.<Method>" (e.g. "snapshots.Replace") or "tx.Commit".
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	return s.faults[op]
}

// tick returns strictly increasing timestamps so insertion order is time order.
func (s *Store) tick() time.Time {
	s.st.seq++
	return s.base.Add(time.Duration(s.st.seq) * time.Millisecond)
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

// DB returns a repository.DB over the store.
func (s *Store) DB() *DB {
	return &DB{store: s}
}

// DB implements repository.DB. Only Begin is functional; the in-memory
// repositories ignore the DBTX they are given.
type DB struct {
	repository.DBTX
	store *Store
}

func (d *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.store.txMu.Lock()
	d.store.mu.Lock()
	saved := d.store.st.clone()
	d.store.mu.Unlock()
	return &Tx{store: d.store, saved: saved}, nil
}

// Tx implements pgx.Tx for Commit and Rollback.
type Tx struct {
	pgx.Tx
	store  *Store
	saved  *state
	closed bool
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	err := t.store.fault("tx.Commit")
	t.store.mu.Unlock()
	if err != nil {
		_ = t.Rollback(ctx)
		return err
	}
	t.closed = true
	t.store.txMu.Unlock()
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	t.store.st = t.saved
	t.store.mu.Unlock()
	t.closed = true
	t.store.txMu.Unlock()
	return nil
}
