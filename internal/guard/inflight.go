package guard

import (
	"context"
	"sync"

	"github.com/attaboy/giveaways/internal/domain"
)

// InFlight rejects a second concurrent request for the same key on this
// instance. The database compare-and-set remains the real guarantee.
type InFlight struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewInFlight creates an empty in-flight guard.
func NewInFlight() *InFlight {
	return &InFlight{active: make(map[string]struct{})}
}

// Begin marks key as in flight. Callers that get Allowed must call Done.
func (g *InFlight) Begin(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[key]; busy {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "request already in progress",
			Guard:   "in_flight",
		}
	}
	g.active[key] = struct{}{}
	return domain.GuardResult{Allowed: true}
}

// Done releases key.
func (g *InFlight) Done(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}
