package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/attaboy/giveaways/internal/guard"
)

// PaymentStatus is the provider's verdict on a payment.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentFailed  PaymentStatus = "failed"
)

// Verification is what a provider reports about one checkout.
type Verification struct {
	Status            PaymentStatus
	ProviderPaymentID string
	AmountMinor       int64
	Currency          string
	Reference         string
	Reason            string
}

// Verifier confirms a payment by its provider reference.
type Verifier interface {
	Verify(ctx context.Context, ref string) (*Verification, error)
}

// ErrUnknownProvider is returned for a provider with no registered verifier.
var ErrUnknownProvider = errors.New("unknown payment provider")

// ErrCircuitOpen is returned while the provider's circuit is open.
var ErrCircuitOpen = errors.New("payment provider circuit open")

// Registry maps provider names to verifiers.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// Register adds or replaces the verifier for name.
func (r *Registry) Register(name string, v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[name] = v
}

// Get returns the verifier for name.
func (r *Registry) Get(name string) (Verifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return v, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.verifiers[name]
	return ok
}

// GuardedVerifier bounds each call with a timeout and trips a per-provider
// circuit breaker on transport failures. A timeout surfaces as
// context.DeadlineExceeded, which callers treat as "still pending".
type GuardedVerifier struct {
	name    string
	inner   Verifier
	timeout time.Duration
	breaker *guard.CircuitBreaker
}

// NewGuardedVerifier wraps inner. A nil breaker disables circuit breaking.
func NewGuardedVerifier(name string, inner Verifier, timeout time.Duration, breaker *guard.CircuitBreaker) *GuardedVerifier {
	return &GuardedVerifier{name: name, inner: inner, timeout: timeout, breaker: breaker}
}

func (g *GuardedVerifier) Verify(ctx context.Context, ref string) (*Verification, error) {
	if g.breaker != nil {
		if res := g.breaker.Check(ctx, g.name); !res.Allowed {
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, res.Reason)
		}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	v, err := g.inner.Verify(ctx, ref)
	if g.breaker != nil {
		if err != nil {
			g.breaker.RecordFailure(g.name)
		} else {
			g.breaker.RecordSuccess(g.name)
		}
	}
	return v, err
}
