package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// MaxAwardAttempts bounds the pick/insert loop when concurrent confirmations
// keep taking the picked prize.
const MaxAwardAttempts = 3

// EligiblePrizes returns prizes whose unlock ratio has been reached.
// The comparison is done as unlockRatio*cap <= sold so no rounding is involved.
// Uncapped campaigns never unlock ratio-based prizes.
func EligiblePrizes(prizes []domain.InstantWinPrize, progress domain.SalesProgress) []domain.InstantWinPrize {
	if progress.Cap == nil || *progress.Cap <= 0 {
		return nil
	}
	sold := decimal.NewFromInt(progress.Sold)
	capacity := decimal.NewFromInt(int64(*progress.Cap))

	var eligible []domain.InstantWinPrize
	for _, p := range prizes {
		if p.UnlockRatio == nil {
			continue
		}
		if p.UnlockRatio.Mul(capacity).LessThanOrEqual(sold) {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

// Unawarded filters out prizes already bound to an intent.
func Unawarded(eligible []domain.InstantWinPrize, awarded map[uuid.UUID]bool) []domain.InstantWinPrize {
	var out []domain.InstantWinPrize
	for _, p := range eligible {
		if !awarded[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// PickPrize selects one candidate uniformly at random. Nil when there are none.
func PickPrize(ctx context.Context, rng RandomSource, candidates []domain.InstantWinPrize) (*domain.InstantWinPrize, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	i, err := rng.IntN(ctx, len(candidates))
	if err != nil {
		return nil, fmt.Errorf("pick prize: %w", err)
	}
	p := candidates[i]
	return &p, nil
}

// InstantWinResolver awards at most one prize per confirmation. The unique
// prize_id on instant_win_awards is the correctness primitive; the random pick
// only chooses which prize to try.
type InstantWinResolver struct {
	prizes repository.PrizeRepository
	rng    RandomSource
	logger *slog.Logger
}

// NewInstantWinResolver creates a resolver.
func NewInstantWinResolver(prizes repository.PrizeRepository, rng RandomSource, logger *slog.Logger) *InstantWinResolver {
	return &InstantWinResolver{prizes: prizes, rng: rng, logger: logger}
}

// Resolve runs inside the confirmation transaction and returns the won prize,
// or nil for no win.
func (r *InstantWinResolver) Resolve(
	ctx context.Context,
	tx pgx.Tx,
	campaignID, intentID uuid.UUID,
	progress domain.SalesProgress,
) (*domain.InstantWinPrize, error) {
	prizes, err := r.prizes.ListByCampaign(ctx, tx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("resolve instant win: %w", err)
	}
	eligible := EligiblePrizes(prizes, progress)
	if len(eligible) == 0 {
		return nil, nil
	}

	for attempt := 1; attempt <= MaxAwardAttempts; attempt++ {
		awarded, err := r.prizes.AwardedPrizeIDs(ctx, tx, campaignID)
		if err != nil {
			return nil, fmt.Errorf("resolve instant win: %w", err)
		}

		prize, err := PickPrize(ctx, r.rng, Unawarded(eligible, awarded))
		if err != nil {
			return nil, err
		}
		if prize == nil {
			return nil, nil
		}

		award, err := r.prizes.InsertAward(ctx, tx, campaignID, intentID, prize.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve instant win: %w", err)
		}
		if award != nil {
			return prize, nil
		}

		r.logger.Info("instant-win prize taken concurrently, retrying",
			"campaign_id", campaignID, "prize_id", prize.ID, "attempt", attempt)
	}

	r.logger.Warn("instant-win award attempts exhausted, treating as no win",
		"campaign_id", campaignID, "checkout_intent_id", intentID, "attempts", MaxAwardAttempts)
	return nil, nil
}
