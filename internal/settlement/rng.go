package settlement

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sync"
)

// RandomSource draws uniform integers in [0, n). Fairness here means a uniform
// distribution. Production wires the Random.org client for the main draw and a
// local CSPRNG for instant wins; tests use a seeded source.
type RandomSource interface {
	IntN(ctx context.Context, n int) (int, error)
}

type seededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededSource returns a deterministic PCG-backed RandomSource.
func NewSeededSource(seed uint64) RandomSource {
	return &seededSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) IntN(_ context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("random range must be positive, got %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n), nil
}

type cryptoSource struct{}

// NewCryptoSource returns a RandomSource backed by crypto/rand. It never leaves
// the process, so it is safe to call while holding row locks.
func NewCryptoSource() RandomSource {
	return cryptoSource{}
}

func (cryptoSource) IntN(_ context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("random range must be positive, got %d", n)
	}
	v, err := crand.Int(crand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("csprng: %w", err)
	}
	return int(v.Int64()), nil
}
