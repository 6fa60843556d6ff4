package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/attaboy/giveaways/internal/infra"
	"github.com/attaboy/giveaways/internal/provider"
	"github.com/attaboy/giveaways/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomSources_InstantWinStaysLocal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &infra.Config{RandomOrgAPIKey: "configured"}

	draw, instant := randomSources(nil, cfg, logger)

	assert.IsType(t, &provider.RandomOrgClient{}, draw)
	_, remote := instant.(*provider.RandomOrgClient)
	assert.False(t, remote, "instant-win picks run under the counter lock")

	// A cancelled context would fail any network call.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err := instant.IntN(ctx, 3)
	require.NoError(t, err)
	assert.Less(t, v, 3)
}

func TestRandomSources_OverrideUsedForBoth(t *testing.T) {
	seeded := settlement.NewSeededSource(1)
	draw, instant := randomSources(seeded, &infra.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Same(t, seeded, draw)
	assert.Same(t, seeded, instant)
}
