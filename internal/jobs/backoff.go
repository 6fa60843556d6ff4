package jobs

import "time"

// Backoff computes the retry delay after a failed attempt: base doubling per
// attempt, capped at max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the delay before the next run after the given attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	if attempt > 32 {
		return b.Max
	}
	delay := base << (attempt - 1)
	if delay <= 0 || (b.Max > 0 && delay > b.Max) {
		return b.Max
	}
	return delay
}
