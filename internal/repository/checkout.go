package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const intentColumns = `id, ref, idempotency_key, user_id, campaign_id, giveaway_id, qty,
		       total_price_minor, currency, provider, provider_session_id, provider_payment_id,
		       state, failure_reason, confirmed_at, failed_at, refunded_at, created_at, updated_at`

type checkoutRepo struct{}

// NewCheckoutRepository returns a pgx-backed CheckoutRepository.
func NewCheckoutRepository() CheckoutRepository {
	return &checkoutRepo{}
}

func (r *checkoutRepo) Create(ctx context.Context, db DBTX, in *domain.CheckoutIntent) (*domain.CheckoutIntent, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO checkout_intents
		  (ref, idempotency_key, user_id, campaign_id, giveaway_id, qty,
		   total_price_minor, currency, provider, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending')
		RETURNING `+intentColumns,
		in.Ref, in.IdempotencyKey, in.UserID, in.CampaignID, in.GiveawayID, in.Qty,
		infra.MinorToNumeric(in.TotalPriceMinor), in.Currency, in.Provider,
	)
	intent, err := scanIntent(row)
	if err != nil {
		return nil, fmt.Errorf("insert checkout intent: %w", err)
	}
	return intent, nil
}

func (r *checkoutRepo) FindByRef(ctx context.Context, db DBTX, ref string) (*domain.CheckoutIntent, error) {
	row := db.QueryRow(ctx, `SELECT `+intentColumns+` FROM checkout_intents WHERE ref = $1`, ref)
	return scanIntent(row)
}

func (r *checkoutRepo) FindByIdempotencyKey(ctx context.Context, db DBTX, key string) (*domain.CheckoutIntent, error) {
	row := db.QueryRow(ctx, `SELECT `+intentColumns+` FROM checkout_intents WHERE idempotency_key = $1`, key)
	return scanIntent(row)
}

func (r *checkoutRepo) FindBySessionID(ctx context.Context, db DBTX, sessionID string) (*domain.CheckoutIntent, error) {
	row := db.QueryRow(ctx, `SELECT `+intentColumns+` FROM checkout_intents WHERE provider_session_id = $1`, sessionID)
	return scanIntent(row)
}

func (r *checkoutRepo) AttachSession(ctx context.Context, db DBTX, id uuid.UUID, sessionID string) error {
	_, err := db.Exec(ctx, `
		UPDATE checkout_intents SET provider_session_id = $2, updated_at = now()
		WHERE id = $1`, id, sessionID)
	if err != nil {
		return fmt.Errorf("attach provider session: %w", err)
	}
	return nil
}

func (r *checkoutRepo) MarkConfirmed(ctx context.Context, db DBTX, id uuid.UUID, providerPaymentID *string) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE checkout_intents
		SET state = 'confirmed', confirmed_at = now(), updated_at = now(),
		    provider_payment_id = COALESCE($2, provider_payment_id)
		WHERE id = $1 AND state = 'pending'`, id, providerPaymentID)
	if err != nil {
		return false, fmt.Errorf("confirm checkout intent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *checkoutRepo) MarkFailed(ctx context.Context, db DBTX, id uuid.UUID, reason string) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE checkout_intents
		SET state = 'failed', failure_reason = $2, failed_at = now(), updated_at = now()
		WHERE id = $1 AND state = 'pending'`, id, reason)
	if err != nil {
		return false, fmt.Errorf("fail checkout intent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *checkoutRepo) MarkRefunded(ctx context.Context, db DBTX, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE checkout_intents SET refunded_at = now(), updated_at = now()
		WHERE id = $1 AND refunded_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("mark checkout refunded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *checkoutRepo) ExpirePending(ctx context.Context, db DBTX, createdBefore time.Time, limit int) ([]domain.CheckoutIntent, error) {
	rows, err := db.Query(ctx, `
		UPDATE checkout_intents
		SET state = 'failed', failure_reason = $3, failed_at = now(), updated_at = now()
		WHERE id IN (
			SELECT id FROM checkout_intents
			WHERE state = 'pending' AND created_at < $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) AND state = 'pending'
		RETURNING `+intentColumns, createdBefore, limit, domain.FailureExpired)
	if err != nil {
		return nil, fmt.Errorf("expire pending intents: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckoutIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *intent)
	}
	return out, rows.Err()
}

func (r *checkoutRepo) InsertEvent(ctx context.Context, db DBTX, e *domain.CheckoutEvent) error {
	raw := e.RawData
	if raw == nil {
		raw = json.RawMessage(`{}`)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO checkout_events (intent_id, state, message, raw_data)
		VALUES ($1, $2, $3, $4)`,
		e.IntentID, e.State, e.Message, raw)
	if err != nil {
		return fmt.Errorf("insert checkout event: %w", err)
	}
	return nil
}

func (r *checkoutRepo) ListEvents(ctx context.Context, db DBTX, intentID uuid.UUID) ([]domain.CheckoutEvent, error) {
	rows, err := db.Query(ctx, `
		SELECT id, intent_id, state, message, raw_data, created_at
		FROM checkout_events WHERE intent_id = $1 ORDER BY id`, intentID)
	if err != nil {
		return nil, fmt.Errorf("query checkout events: %w", err)
	}
	defer rows.Close()

	var events []domain.CheckoutEvent
	for rows.Next() {
		var e domain.CheckoutEvent
		if err := rows.Scan(&e.ID, &e.IntentID, &e.State, &e.Message, &e.RawData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkout event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanIntent(row pgx.Row) (*domain.CheckoutIntent, error) {
	var in domain.CheckoutIntent
	var total pgtype.Numeric
	err := row.Scan(
		&in.ID, &in.Ref, &in.IdempotencyKey, &in.UserID, &in.CampaignID, &in.GiveawayID, &in.Qty,
		&total, &in.Currency, &in.Provider, &in.ProviderSessionID, &in.ProviderPaymentID,
		&in.State, &in.FailureReason, &in.ConfirmedAt, &in.FailedAt, &in.RefundedAt,
		&in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan checkout intent: %w", err)
	}
	in.TotalPriceMinor, err = infra.NumericToMinor(total)
	if err != nil {
		return nil, fmt.Errorf("convert total_price_minor: %w", err)
	}
	return &in, nil
}
