package repotest

import (
	"github.com/attaboy/giveaways/internal/domain"
	"github.com/google/uuid"
)

// AddCampaign seeds a campaign. Zero IDs are filled in.
func (s *Store) AddCampaign(c domain.Campaign) domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.GiveawayID == uuid.Nil {
		c.GiveawayID = uuid.New()
	}
	if c.Currency == "" {
		c.Currency = "GBP"
	}
	s.st.campaigns[c.ID] = c
	return c
}

// AddEntry seeds an entry without allocating tickets.
func (s *Store) AddEntry(campaignID, userID uuid.UUID, qty int) domain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := domain.Entry{ID: uuid.New(), CampaignID: campaignID, UserID: userID, Qty: qty, CreatedAt: s.tick()}
	s.st.entries = append(s.st.entries, e)
	return e
}

// Campaign returns the current row.
func (s *Store) Campaign(id uuid.UUID) domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.campaigns[id]
}

// IntentByRef returns the intent with ref, or nil.
func (s *Store) IntentByRef(ref string) *domain.CheckoutIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.st.intents {
		if in.Ref == ref {
			c := in
			return &c
		}
	}
	return nil
}

// IntentCount is the number of checkout intents.
func (s *Store) IntentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.intents)
}

// EntriesFor lists the campaign's entries in insertion order.
func (s *Store) EntriesFor(campaignID uuid.UUID) []domain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Entry
	for _, e := range s.st.entries {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out
}

// AllocationsFor lists the giveaway's ticket allocations.
func (s *Store) AllocationsFor(giveawayID uuid.UUID) []domain.TicketAllocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TicketAllocation
	for _, a := range s.st.allocations {
		if a.GiveawayID == giveawayID {
			out = append(out, a)
		}
	}
	return out
}

// NextTicket is the counter cursor, 1 when no ticket was ever allocated.
func (s *Store) NextTicket(giveawayID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.counters[giveawayID]
	if !ok {
		return 1
	}
	return c.NextTicket
}

// Awards lists every instant-win award.
func (s *Store) Awards() []domain.InstantWinAward {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.InstantWinAward(nil), s.st.awards...)
}

// Winner returns the campaign's winner, or nil.
func (s *Store) Winner(campaignID uuid.UUID) *domain.Winner {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.st.winners[campaignID]
	if !ok {
		return nil
	}
	return &w
}

// EventTypes lists the outbox event types in write order.
func (s *Store) EventTypes() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, 0, len(s.st.outbox))
	for _, row := range s.st.outbox {
		out = append(out, row.EventType)
	}
	return out
}

// CheckoutEventStates lists the audit states recorded for an intent.
func (s *Store) CheckoutEventStates(intentID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.st.events {
		if e.IntentID == intentID {
			out = append(out, e.State)
		}
	}
	return out
}

// JobsOf lists queued or finished jobs of a kind.
func (s *Store) JobsOf(kind domain.JobKind) []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, j := range s.st.jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

// SnapshotCount is the number of snapshot rows.
func (s *Store) SnapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.snapshots)
}

// SetNextTicket moves the giveaway's counter as if next-1 tickets were sold.
func (s *Store) SetNextTicket(giveawayID uuid.UUID, next int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.counters[giveawayID] = domain.TicketCounter{GiveawayID: giveawayID, NextTicket: next, UpdatedAt: s.tick()}
}
