package settlement

import (
	"context"
	"fmt"

	"github.com/attaboy/giveaways/internal/domain"
)

// DrawPick is the winning entry and the offset of the winning ticket inside it.
type DrawPick struct {
	Index  int
	Entry  domain.Entry
	Offset int64
}

// TicketsSold sums entry quantities.
func TicketsSold(entries []domain.Entry) int64 {
	var total int64
	for _, e := range entries {
		total += int64(e.Qty)
	}
	return total
}

// SelectWinner walks entries in order accumulating qty and returns the first
// entry whose cumulative sum reaches r. r is 1-based in [1, TicketsSold].
// For a fixed order and r the result is deterministic.
func SelectWinner(entries []domain.Entry, r int64) (*DrawPick, error) {
	if r < 1 {
		return nil, fmt.Errorf("draw position must be at least 1, got %d", r)
	}
	var cumulative int64
	for i, e := range entries {
		before := cumulative
		cumulative += int64(e.Qty)
		if cumulative >= r {
			return &DrawPick{Index: i, Entry: e, Offset: r - before - 1}, nil
		}
	}
	return nil, fmt.Errorf("draw position %d beyond %d tickets sold", r, cumulative)
}

// DrawPosition picks r uniformly from [1, ticketsSold].
func DrawPosition(ctx context.Context, rng RandomSource, ticketsSold int64) (int64, error) {
	if ticketsSold < 1 {
		return 0, fmt.Errorf("no tickets sold")
	}
	n, err := rng.IntN(ctx, int(ticketsSold))
	if err != nil {
		return 0, fmt.Errorf("draw position: %w", err)
	}
	return int64(n) + 1, nil
}
