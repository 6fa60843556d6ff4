//go:build integration

package testutil

import (
	"context"
	"strings"
	"time"
)

// CleanAll truncates all giveaway tables.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"instant_win_awards",
		"winners",
		"ticket_allocations",
		"entries",
		"checkout_events",
		"checkout_intents",
		"instant_win_prizes",
		"giveaway_ticket_counters",
		"public_snapshots",
		"jobs",
		"job_leases",
		"event_outbox",
		"campaigns",
	}

	// One statement so CASCADE sees every FK at once.
	_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE")
}
