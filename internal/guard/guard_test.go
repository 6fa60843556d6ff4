package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "user-1")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	rl := NewRateLimiter(0.01, 2)
	ctx := context.Background()

	rl.Check(ctx, "user-1")
	rl.Check(ctx, "user-1")
	result := rl.Check(ctx, "user-1")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(0.01, 1)
	ctx := context.Background()

	r1 := rl.Check(ctx, "key-a")
	r2 := rl.Check(ctx, "key-b")

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter(100, 1)
	ctx := context.Background()

	require.True(t, rl.Check(ctx, "k").Allowed)
	assert.False(t, rl.Check(ctx, "k").Allowed)

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Check(ctx, "k").Allowed)
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)
	ctx := context.Background()

	result := cb.Check(ctx, "stripe")
	assert.True(t, result.Allowed)
	assert.Equal(t, CircuitClosed, cb.State("stripe"))
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "stripe")
	cb.RecordFailure("stripe")
	cb.RecordFailure("stripe")

	result := cb.Check(ctx, "stripe")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
	assert.Equal(t, CircuitOpen, cb.State("stripe"))

	assert.True(t, cb.Check(ctx, "other").Allowed)
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "stripe")
	cb.RecordFailure("stripe")
	cb.RecordSuccess("stripe")
	cb.RecordFailure("stripe")

	result := cb.Check(ctx, "stripe")
	assert.True(t, result.Allowed)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	now := time.Now()
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	cb.RecordFailure("stripe")
	assert.False(t, cb.Check(ctx, "stripe").Allowed)

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Check(ctx, "stripe").Allowed, "first probe allowed")
	assert.False(t, cb.Check(ctx, "stripe").Allowed, "second probe blocked")
	assert.Equal(t, CircuitHalfOpen, cb.State("stripe"))

	cb.RecordFailure("stripe")
	assert.Equal(t, CircuitOpen, cb.State("stripe"))

	now = now.Add(2 * time.Minute)
	require.True(t, cb.Check(ctx, "stripe").Allowed)
	cb.RecordSuccess("stripe")
	assert.Equal(t, CircuitClosed, cb.State("stripe"))
	assert.True(t, cb.Check(ctx, "stripe").Allowed)
}

func TestInFlight_BlocksConcurrentDuplicate(t *testing.T) {
	g := NewInFlight()
	ctx := context.Background()

	require.True(t, g.Begin(ctx, "gw_abc").Allowed)
	result := g.Begin(ctx, "gw_abc")
	assert.False(t, result.Allowed)
	assert.Equal(t, "in_flight", result.Guard)

	g.Done("gw_abc")
	assert.True(t, g.Begin(ctx, "gw_abc").Allowed)
}

func TestInFlight_EmptyKeyAllowed(t *testing.T) {
	g := NewInFlight()
	ctx := context.Background()

	assert.True(t, g.Begin(ctx, "").Allowed)
	assert.True(t, g.Begin(ctx, "").Allowed)
}

func TestInFlight_OneWinnerUnderContention(t *testing.T) {
	g := NewInFlight()
	ctx := context.Background()

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Begin(ctx, "same").Allowed {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), allowed)
}
