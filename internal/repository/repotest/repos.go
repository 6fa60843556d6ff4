package repotest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Campaigns returns the campaign repository.
func (s *Store) Campaigns() repository.CampaignRepository { return &campaigns{s} }

// Checkouts returns the checkout repository.
func (s *Store) Checkouts() repository.CheckoutRepository { return &checkouts{s} }

// Entries returns the entry repository.
func (s *Store) Entries() repository.EntryRepository { return &entries{s} }

// Tickets returns the ticket repository.
func (s *Store) Tickets() repository.TicketRepository { return &tickets{s} }

// Prizes returns the prize repository.
func (s *Store) Prizes() repository.PrizeRepository { return &prizes{s} }

// Winners returns the winner repository.
func (s *Store) Winners() repository.WinnerRepository { return &winners{s} }

// Jobs returns the job repository.
func (s *Store) Jobs() repository.JobRepository { return &jobs{s} }

// Leases returns the lease repository.
func (s *Store) Leases() repository.LeaseRepository { return &leases{s} }

// Snapshots returns the snapshot repository.
func (s *Store) Snapshots() repository.SnapshotRepository { return &snapshots{s} }

// Outbox returns the outbox repository.
func (s *Store) Outbox() repository.OutboxRepository { return &outbox{s} }

// --- campaigns ---

type campaigns struct{ s *Store }

func (r *campaigns) Create(_ context.Context, _ repository.DBTX, p domain.CreateCampaignParams) (*domain.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("campaigns.Create"); err != nil {
		return nil, err
	}
	for _, c := range r.s.st.campaigns {
		if c.Slug == p.Slug {
			return nil, uniqueViolation("campaigns_slug_key")
		}
	}
	now := r.s.tick()
	c := domain.Campaign{
		ID:                uuid.New(),
		GiveawayID:        uuid.New(),
		Slug:              p.Slug,
		Title:             p.Title,
		Status:            domain.CampaignDraft,
		StartAt:           p.StartAt,
		EndAt:             p.EndAt,
		TicketPriceMinor:  p.TicketPriceMinor,
		Currency:          p.Currency,
		MaxTicketsTotal:   p.MaxTicketsTotal,
		MaxTicketsPerUser: p.MaxTicketsPerUser,
		PrizeTitle:        p.PrizeTitle,
		PrizeValueText:    p.PrizeValueText,
		PrizeImageURL:     p.PrizeImageURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	r.s.st.campaigns[c.ID] = c
	return &c, nil
}

func (r *campaigns) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("campaigns.FindByID"); err != nil {
		return nil, err
	}
	c, ok := r.s.st.campaigns[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *campaigns) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Campaign, error) {
	return r.FindByID(ctx, tx, id)
}

func (r *campaigns) ListDue(_ context.Context, _ repository.DBTX, now time.Time, limit int) ([]domain.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("campaigns.ListDue"); err != nil {
		return nil, err
	}
	var out []domain.Campaign
	for _, c := range r.s.st.campaigns {
		if c.DueForDraw(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndAt.Before(out[j].EndAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *campaigns) UpdateStatus(_ context.Context, _ repository.DBTX, id uuid.UUID, from, to domain.CampaignStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("campaigns.UpdateStatus"); err != nil {
		return false, err
	}
	c, ok := r.s.st.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = r.s.tick()
	r.s.st.campaigns[id] = c
	return true, nil
}

func (r *campaigns) ExtendEnd(_ context.Context, _ repository.DBTX, id uuid.UUID, endAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("campaigns.ExtendEnd"); err != nil {
		return err
	}
	c, ok := r.s.st.campaigns[id]
	if !ok {
		return fmt.Errorf("campaign %s not found", id)
	}
	c.EndAt = endAt
	r.s.st.campaigns[id] = c
	return nil
}

// --- checkout intents ---

type checkouts struct{ s *Store }

func (r *checkouts) Create(_ context.Context, _ repository.DBTX, in *domain.CheckoutIntent) (*domain.CheckoutIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("checkouts.Create"); err != nil {
		return nil, err
	}
	for _, existing := range r.s.st.intents {
		if existing.Ref == in.Ref {
			return nil, uniqueViolation("checkout_intents_ref_key")
		}
		if existing.IdempotencyKey == in.IdempotencyKey {
			return nil, uniqueViolation("checkout_intents_idempotency_key_key")
		}
	}
	now := r.s.tick()
	c := *in
	c.ID = uuid.New()
	c.State = domain.IntentPending
	c.CreatedAt = now
	c.UpdatedAt = now
	r.s.st.intents[c.ID] = c
	return &c, nil
}

func (r *checkouts) find(match func(domain.CheckoutIntent) bool) *domain.CheckoutIntent {
	for _, in := range r.s.st.intents {
		if match(in) {
			c := in
			return &c
		}
	}
	return nil
}

func (r *checkouts) FindByRef(_ context.Context, _ repository.DBTX, ref string) (*domain.CheckoutIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("checkouts.FindByRef"); err != nil {
		return nil, err
	}
	return r.find(func(in domain.CheckoutIntent) bool { return in.Ref == ref }), nil
}

func (r *checkouts) FindByIdempotencyKey(_ context.Context, _ repository.DBTX, key string) (*domain.CheckoutIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.find(func(in domain.CheckoutIntent) bool { return in.IdempotencyKey == key }), nil
}

func (r *checkouts) FindBySessionID(_ context.Context, _ repository.DBTX, sessionID string) (*domain.CheckoutIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.find(func(in domain.CheckoutIntent) bool {
		return in.ProviderSessionID != nil && *in.ProviderSessionID == sessionID
	}), nil
}

func (r *checkouts) AttachSession(_ context.Context, _ repository.DBTX, id uuid.UUID, sessionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	in, ok := r.s.st.intents[id]
	if !ok {
		return fmt.Errorf("intent %s not found", id)
	}
	in.ProviderSessionID = &sessionID
	r.s.st.intents[id] = in
	return nil
}

func (r *checkouts) MarkConfirmed(_ context.Context, _ repository.DBTX, id uuid.UUID, providerPaymentID *string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("checkouts.MarkConfirmed"); err != nil {
		return false, err
	}
	in, ok := r.s.st.intents[id]
	if !ok || in.State != domain.IntentPending {
		return false, nil
	}
	now := r.s.tick()
	in.State = domain.IntentConfirmed
	in.ConfirmedAt = &now
	if providerPaymentID != nil {
		in.ProviderPaymentID = providerPaymentID
	}
	r.s.st.intents[id] = in
	return true, nil
}

func (r *checkouts) MarkFailed(_ context.Context, _ repository.DBTX, id uuid.UUID, reason string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	in, ok := r.s.st.intents[id]
	if !ok || in.State != domain.IntentPending {
		return false, nil
	}
	now := r.s.tick()
	in.State = domain.IntentFailed
	in.FailureReason = &reason
	in.FailedAt = &now
	r.s.st.intents[id] = in
	return true, nil
}

func (r *checkouts) MarkRefunded(_ context.Context, _ repository.DBTX, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	in, ok := r.s.st.intents[id]
	if !ok || in.RefundedAt != nil {
		return false, nil
	}
	now := r.s.tick()
	in.RefundedAt = &now
	r.s.st.intents[id] = in
	return true, nil
}

func (r *checkouts) ExpirePending(_ context.Context, _ repository.DBTX, createdBefore time.Time, limit int) ([]domain.CheckoutIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CheckoutIntent
	for id, in := range r.s.st.intents {
		if len(out) >= limit {
			break
		}
		if in.State != domain.IntentPending || !in.CreatedAt.Before(createdBefore) {
			continue
		}
		now := r.s.tick()
		reason := domain.FailureExpired
		in.State = domain.IntentFailed
		in.FailureReason = &reason
		in.FailedAt = &now
		r.s.st.intents[id] = in
		out = append(out, in)
	}
	return out, nil
}

func (r *checkouts) InsertEvent(_ context.Context, _ repository.DBTX, e *domain.CheckoutEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *e
	c.ID = int64(len(r.s.st.events) + 1)
	c.CreatedAt = r.s.tick()
	r.s.st.events = append(r.s.st.events, c)
	return nil
}

func (r *checkouts) ListEvents(_ context.Context, _ repository.DBTX, intentID uuid.UUID) ([]domain.CheckoutEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CheckoutEvent
	for _, e := range r.s.st.events {
		if e.IntentID == intentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- entries ---

type entries struct{ s *Store }

func (r *entries) Create(_ context.Context, _ repository.DBTX, e *domain.Entry) (*domain.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("entries.Create"); err != nil {
		return nil, err
	}
	if e.CheckoutIntentID != nil {
		for _, existing := range r.s.st.entries {
			if existing.CheckoutIntentID != nil && *existing.CheckoutIntentID == *e.CheckoutIntentID {
				return nil, uniqueViolation("entries_checkout_intent_id_key")
			}
		}
	}
	c := *e
	c.ID = uuid.New()
	c.CreatedAt = r.s.tick()
	r.s.st.entries = append(r.s.st.entries, c)
	return &c, nil
}

func (r *entries) FindByIntentID(_ context.Context, _ repository.DBTX, intentID uuid.UUID) (*domain.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.st.entries {
		if e.CheckoutIntentID != nil && *e.CheckoutIntentID == intentID {
			c := e
			return &c, nil
		}
	}
	return nil, nil
}

func (r *entries) SumQtyByUser(_ context.Context, _ repository.DBTX, campaignID, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, e := range r.s.st.entries {
		if e.CampaignID == campaignID && e.UserID == userID {
			total += int64(e.Qty)
		}
	}
	return total, nil
}

func (r *entries) Stats(_ context.Context, _ repository.DBTX, campaignID uuid.UUID) (domain.CampaignStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var stats domain.CampaignStats
	if err := r.s.fault("entries.Stats"); err != nil {
		return stats, err
	}
	users := make(map[uuid.UUID]bool)
	for _, e := range r.s.st.entries {
		if e.CampaignID == campaignID {
			stats.TicketsSold += int64(e.Qty)
			users[e.UserID] = true
		}
	}
	stats.Entrants = int64(len(users))
	return stats, nil
}

func (r *entries) ListForDraw(_ context.Context, _ repository.DBTX, campaignID uuid.UUID) ([]domain.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("entries.ListForDraw"); err != nil {
		return nil, err
	}
	var out []domain.Entry
	for _, e := range r.s.st.entries {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- tickets ---

type tickets struct{ s *Store }

func (r *tickets) LockCounter(_ context.Context, _ pgx.Tx, giveawayID uuid.UUID) (*domain.TicketCounter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.counters[giveawayID]
	if !ok {
		c = domain.TicketCounter{GiveawayID: giveawayID, NextTicket: 1, UpdatedAt: r.s.tick()}
		r.s.st.counters[giveawayID] = c
	}
	return &c, nil
}

func (r *tickets) PeekCounter(_ context.Context, _ repository.DBTX, giveawayID uuid.UUID) (*domain.TicketCounter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.counters[giveawayID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *tickets) AdvanceCounter(_ context.Context, _ pgx.Tx, giveawayID uuid.UUID, next int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.counters[giveawayID]
	if !ok || c.NextTicket >= next {
		return fmt.Errorf("advance ticket counter: counter %s not behind %d", giveawayID, next)
	}
	c.NextTicket = next
	c.UpdatedAt = r.s.tick()
	r.s.st.counters[giveawayID] = c
	return nil
}

func (r *tickets) InsertAllocation(_ context.Context, _ repository.DBTX, a domain.TicketAllocation) (*domain.TicketAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.allocations[a.EntryID]; ok {
		return nil, uniqueViolation("ticket_allocations_pkey")
	}
	for _, existing := range r.s.st.allocations {
		if existing.GiveawayID == a.GiveawayID && existing.StartTicket == a.StartTicket {
			return nil, uniqueViolation("ticket_allocations_giveaway_id_start_ticket_key")
		}
	}
	a.CreatedAt = r.s.tick()
	r.s.st.allocations[a.EntryID] = a
	return &a, nil
}

func (r *tickets) FindAllocationByEntry(_ context.Context, _ repository.DBTX, entryID uuid.UUID) (*domain.TicketAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.st.allocations[entryID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// --- prizes ---

type prizes struct{ s *Store }

func (r *prizes) Create(_ context.Context, _ repository.DBTX, campaignID uuid.UUID, p domain.CreatePrizeParams) (*domain.InstantWinPrize, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prize := domain.InstantWinPrize{
		ID:          uuid.New(),
		CampaignID:  campaignID,
		Title:       p.Title,
		ValueText:   p.ValueText,
		UnlockRatio: p.UnlockRatio,
		ImageURL:    p.ImageURL,
		CreatedAt:   r.s.tick(),
	}
	r.s.st.prizes = append(r.s.st.prizes, prize)
	return &prize, nil
}

func (r *prizes) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.InstantWinPrize, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.prizes {
		if p.ID == id {
			c := p
			return &c, nil
		}
	}
	return nil, nil
}

func (r *prizes) ListByCampaign(_ context.Context, _ repository.DBTX, campaignID uuid.UUID) ([]domain.InstantWinPrize, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.InstantWinPrize
	for _, p := range r.s.st.prizes {
		if p.CampaignID == campaignID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *prizes) AwardedPrizeIDs(_ context.Context, _ repository.DBTX, campaignID uuid.UUID) (map[uuid.UUID]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[uuid.UUID]bool)
	for _, a := range r.s.st.awards {
		if a.CampaignID == campaignID {
			out[a.PrizeID] = true
		}
	}
	return out, nil
}

func (r *prizes) InsertAward(_ context.Context, _ repository.DBTX, campaignID, intentID, prizeID uuid.UUID) (*domain.InstantWinAward, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.st.awards {
		if a.PrizeID == prizeID {
			return nil, nil
		}
		if a.CheckoutIntentID == intentID {
			return nil, uniqueViolation("instant_win_awards_checkout_intent_id_key")
		}
	}
	award := domain.InstantWinAward{
		ID:               uuid.New(),
		CampaignID:       campaignID,
		CheckoutIntentID: intentID,
		PrizeID:          prizeID,
		AwardedAt:        r.s.tick(),
	}
	r.s.st.awards = append(r.s.st.awards, award)
	return &award, nil
}

func (r *prizes) FindAwardByIntent(_ context.Context, _ repository.DBTX, intentID uuid.UUID) (*domain.InstantWinAward, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.st.awards {
		if a.CheckoutIntentID == intentID {
			c := a
			return &c, nil
		}
	}
	return nil, nil
}

// --- winners ---

type winners struct{ s *Store }

func (r *winners) Insert(_ context.Context, _ repository.DBTX, w *domain.Winner) (*domain.Winner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("winners.Insert"); err != nil {
		return nil, err
	}
	if _, ok := r.s.st.winners[w.CampaignID]; ok {
		return nil, nil
	}
	c := *w
	c.ID = uuid.New()
	c.AnnouncedAt = r.s.tick()
	r.s.st.winners[c.CampaignID] = c
	return &c, nil
}

func (r *winners) FindByCampaign(_ context.Context, _ repository.DBTX, campaignID uuid.UUID) (*domain.Winner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.st.winners[campaignID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// --- jobs ---

type jobs struct{ s *Store }

func (r *jobs) Enqueue(_ context.Context, _ repository.DBTX, p domain.EnqueueParams) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("jobs.Enqueue"); err != nil {
		return nil, err
	}
	if p.DedupeKey != "" {
		for _, j := range r.s.st.jobs {
			active := j.Status == domain.JobQueued || j.Status == domain.JobRunning
			if active && j.DedupeKey != nil && *j.DedupeKey == p.DedupeKey {
				return nil, nil
			}
		}
	}
	payload := p.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	now := r.s.tick()
	runAt := p.RunAt
	if runAt.IsZero() {
		runAt = now
	}
	j := domain.Job{
		ID:          uuid.New(),
		Kind:        p.Kind,
		Payload:     payload,
		Status:      domain.JobQueued,
		MaxAttempts: maxAttempts,
		RunAt:       runAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.DedupeKey != "" {
		key := p.DedupeKey
		j.DedupeKey = &key
	}
	r.s.st.jobs = append(r.s.st.jobs, j)
	return &j, nil
}

// Claim ignores run_at so tests can run retried jobs without waiting.
func (r *jobs) Claim(_ context.Context, _ repository.DBTX, owner string, ttl time.Duration, limit int) ([]domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Job
	for i := range r.s.st.jobs {
		if len(out) >= limit {
			break
		}
		j := &r.s.st.jobs[i]
		if j.Status != domain.JobQueued {
			continue
		}
		o := owner
		until := time.Now().Add(ttl)
		j.Status = domain.JobRunning
		j.LockedBy = &o
		j.LockedUntil = &until
		j.Attempts++
		out = append(out, *j)
	}
	return out, nil
}

func (r *jobs) BuryExpired(_ context.Context, _ repository.DBTX, lastErr string) ([]domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Job
	now := time.Now()
	for i := range r.s.st.jobs {
		j := &r.s.st.jobs[i]
		if j.Status != domain.JobRunning || j.LockedUntil == nil || j.LockedUntil.After(now) || j.Attempts < j.MaxAttempts {
			continue
		}
		msg := lastErr
		j.Status = domain.JobDead
		j.LockedBy = nil
		j.LockedUntil = nil
		j.LastError = &msg
		out = append(out, *j)
	}
	return out, nil
}

func (r *jobs) transition(id uuid.UUID, owner string, to domain.JobStatus, lastErr *string) bool {
	for i := range r.s.st.jobs {
		j := &r.s.st.jobs[i]
		if j.ID != id {
			continue
		}
		if j.Status != domain.JobRunning || j.LockedBy == nil || *j.LockedBy != owner {
			return false
		}
		j.Status = to
		j.LockedBy = nil
		j.LockedUntil = nil
		j.LastError = lastErr
		return true
	}
	return false
}

func (r *jobs) Complete(_ context.Context, _ repository.DBTX, id uuid.UUID, owner string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.transition(id, owner, domain.JobSucceeded, nil), nil
}

func (r *jobs) Retry(_ context.Context, _ repository.DBTX, id uuid.UUID, owner string, _ time.Duration, lastErr string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.transition(id, owner, domain.JobQueued, &lastErr), nil
}

func (r *jobs) Bury(_ context.Context, _ repository.DBTX, id uuid.UUID, owner string, lastErr string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.transition(id, owner, domain.JobDead, &lastErr), nil
}

func (r *jobs) ListDead(_ context.Context, _ repository.DBTX, limit int) ([]domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Job
	for _, j := range r.s.st.jobs {
		if j.Status == domain.JobDead && len(out) < limit {
			out = append(out, j)
		}
	}
	return out, nil
}

// --- leases ---

type leases struct{ s *Store }

func (r *leases) Acquire(_ context.Context, _ repository.DBTX, name, owner string, token uuid.UUID, ttl time.Duration) (*domain.Lease, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.s.st.leases[name]; ok && cur.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	l := domain.Lease{Name: name, Owner: owner, Token: token, ExpiresAt: time.Now().Add(ttl)}
	r.s.st.leases[name] = l
	return &l, nil
}

func (r *leases) Renew(_ context.Context, _ repository.DBTX, l *domain.Lease, ttl time.Duration) (*domain.Lease, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.st.leases[l.Name]
	if !ok || cur.Token != l.Token || !cur.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	cur.ExpiresAt = time.Now().Add(ttl)
	r.s.st.leases[l.Name] = cur
	return &cur, nil
}

func (r *leases) Release(_ context.Context, _ repository.DBTX, l *domain.Lease) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.s.st.leases[l.Name]; ok && cur.Token == l.Token {
		delete(r.s.st.leases, l.Name)
	}
	return nil
}

// --- snapshots ---

type snapshots struct{ s *Store }

func (r *snapshots) Replace(_ context.Context, _ repository.DBTX, snap domain.Snapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("snapshots.Replace"); err != nil {
		return err
	}
	r.s.st.snapshots[snapshotKey{snap.Entity, snap.EntityID, snap.Kind}] = snap
	return nil
}

func (r *snapshots) Find(_ context.Context, _ repository.DBTX, entity domain.SnapshotEntity, id uuid.UUID, kind domain.SnapshotKind) (*domain.Snapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	snap, ok := r.s.st.snapshots[snapshotKey{entity, id, kind}]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// --- outbox ---

type outbox struct{ s *Store }

func (r *outbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.outbox = append(r.s.st.outbox, domain.OutboxRow{SeqID: int64(len(r.s.st.outbox) + 1), OutboxDraft: draft})
	return nil
}

func (r *outbox) FetchUnpublished(_ context.Context, _ repository.DBTX, limit int) ([]domain.OutboxRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.s.st.outbox
	if len(out) > limit {
		out = out[:limit]
	}
	return append([]domain.OutboxRow(nil), out...), nil
}

func (r *outbox) MarkPublished(_ context.Context, _ repository.DBTX, ids []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := r.s.st.outbox[:0]
	for _, row := range r.s.st.outbox {
		if !drop[row.SeqID] {
			kept = append(kept, row)
		}
	}
	r.s.st.outbox = kept
	return nil
}
