package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/guard"
	"github.com/attaboy/giveaways/internal/jobs"
	"github.com/attaboy/giveaways/internal/ledger"
	"github.com/attaboy/giveaways/internal/metrics"
	"github.com/attaboy/giveaways/internal/policy"
	"github.com/attaboy/giveaways/internal/provider"
	"github.com/attaboy/giveaways/internal/repository"
	"github.com/attaboy/giveaways/internal/settlement"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ProviderStripe is the provider name of hosted Stripe checkouts.
const ProviderStripe = "stripe"

const expireBatchSize = 500

// CheckoutDeps groups the repositories and collaborators of CheckoutService.
type CheckoutDeps struct {
	Campaigns repository.CampaignRepository
	Checkouts repository.CheckoutRepository
	Entries   repository.EntryRepository
	Tickets   repository.TicketRepository
	Prizes    repository.PrizeRepository
	Outbox    repository.OutboxRepository
	Engine    *ledger.Engine
	Resolver  *settlement.InstantWinResolver
	Verifiers *provider.Registry
	Stripe    *provider.StripeProvider // nil disables hosted sessions and webhooks
	Snapshots SnapshotRefresher
	Queue     *jobs.Queue
	Refs      RefIssuer
}

// CheckoutConfig holds checkout tunables.
type CheckoutConfig struct {
	MaxSpendPerCheckoutMinor int64
	SuccessURL               string
	CancelURL                string
}

// CheckoutService runs the checkout → confirm → award flow.
type CheckoutService struct {
	pool      repository.DB
	campaigns repository.CampaignRepository
	checkouts repository.CheckoutRepository
	entries   repository.EntryRepository
	tickets   repository.TicketRepository
	prizes    repository.PrizeRepository
	outbox    repository.OutboxRepository
	engine    *ledger.Engine
	resolver  *settlement.InstantWinResolver
	verifiers *provider.Registry
	stripe    *provider.StripeProvider
	snapshots SnapshotRefresher
	queue     *jobs.Queue
	refs      RefIssuer
	inflight  *guard.InFlight
	cfg       CheckoutConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewCheckoutService creates a CheckoutService.
func NewCheckoutService(pool repository.DB, deps CheckoutDeps, cfg CheckoutConfig, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		pool:      pool,
		campaigns: deps.Campaigns,
		checkouts: deps.Checkouts,
		entries:   deps.Entries,
		tickets:   deps.Tickets,
		prizes:    deps.Prizes,
		outbox:    deps.Outbox,
		engine:    deps.Engine,
		resolver:  deps.Resolver,
		verifiers: deps.Verifiers,
		stripe:    deps.Stripe,
		snapshots: deps.Snapshots,
		queue:     deps.Queue,
		refs:      deps.Refs,
		inflight:  guard.NewInFlight(),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateIntent records a pending checkout intent. Nothing is allocated here;
// the capacity and per-user checks are advisory.
func (s *CheckoutService) CreateIntent(ctx context.Context, p domain.CreateIntentParams) (*domain.CheckoutStart, error) {
	if err := domain.ValidateQty(p.Qty); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if p.Provider == "" {
		p.Provider = ProviderStripe
	}
	if !s.verifiers.Has(p.Provider) {
		return nil, domain.ErrValidation(fmt.Sprintf("unsupported payment provider %q", p.Provider))
	}

	if p.IdempotencyKey != "" {
		existing, err := s.checkouts.FindByIdempotencyKey(ctx, s.pool, p.IdempotencyKey)
		if err != nil {
			return nil, domain.ErrInternal("find intent by idempotency key", err)
		}
		if existing != nil {
			return s.replayStart(existing, p.UserID)
		}
	}

	campaign, err := s.campaigns.FindByID(ctx, s.pool, p.CampaignID)
	if err != nil {
		return nil, domain.ErrInternal("find campaign", err)
	}
	if campaign == nil {
		return nil, domain.ErrNotFound("campaign", p.CampaignID.String())
	}
	if !campaign.IsOpen(s.now()) {
		return nil, domain.ErrCampaignClosed(campaign.Status)
	}

	held, err := s.entries.SumQtyByUser(ctx, s.pool, campaign.ID, p.UserID)
	if err != nil {
		return nil, domain.ErrInternal("sum user tickets", err)
	}
	limits := policy.CampaignPurchaseLimits(campaign, s.cfg.MaxSpendPerCheckoutMinor)
	if eval := policy.EvaluatePurchaseLimits(limits, p.Qty, held, campaign.TicketPriceMinor); !eval.Allowed {
		metrics.RecordCheckoutIntent(p.Provider, "limit_"+eval.BreachedLimit)
		return nil, limitError(eval)
	}

	if err := s.engine.CheckCapacity(ctx, s.pool, campaign.GiveawayID, p.Qty, campaign.MaxTicketsTotal); err != nil {
		if errors.Is(err, ledger.ErrCapExceeded) {
			metrics.RecordCheckoutIntent(p.Provider, "sold_out")
			return nil, domain.ErrSoldOut()
		}
		return nil, domain.ErrInternal("check capacity", err)
	}

	key := p.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	draft := &domain.CheckoutIntent{
		Ref:             s.refs.Next(),
		IdempotencyKey:  key,
		UserID:          p.UserID,
		CampaignID:      campaign.ID,
		GiveawayID:      campaign.GiveawayID,
		Qty:             p.Qty,
		TotalPriceMinor: int64(p.Qty) * campaign.TicketPriceMinor,
		Currency:        campaign.Currency,
		Provider:        p.Provider,
	}
	intent, err := s.insertIntent(ctx, draft)
	if repository.IsUniqueViolationOn(err, repository.ConstraintIntentRef) {
		// Replicas sharing a node id can mint the same ref in one millisecond.
		s.logger.Warn("checkout ref collision, regenerating", "ref", draft.Ref)
		draft.Ref = s.refs.Next()
		intent, err = s.insertIntent(ctx, draft)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && p.IdempotencyKey != "" {
			// Lost a race with a retry carrying the same key.
			existing, findErr := s.checkouts.FindByIdempotencyKey(ctx, s.pool, p.IdempotencyKey)
			if findErr == nil && existing != nil {
				return s.replayStart(existing, p.UserID)
			}
		}
		return nil, domain.ErrInternal("create checkout intent", err)
	}

	start := startFromIntent(intent)
	if intent.Provider == ProviderStripe && s.stripe != nil && s.stripe.Configured() {
		session, err := s.stripe.CreateCheckoutSession(ctx, provider.SessionRequest{
			Ref:             intent.Ref,
			ProductName:     campaign.Title,
			UnitAmountMinor: campaign.TicketPriceMinor,
			Qty:             intent.Qty,
			Currency:        intent.Currency,
			SuccessURL:      s.cfg.SuccessURL,
			CancelURL:       s.cfg.CancelURL,
		})
		if err != nil {
			s.logger.Error("create provider checkout session", "error", err, "ref", intent.Ref)
			if failErr := s.failIntent(ctx, intent, domain.FailureProviderSessionFailed, err.Error()); failErr != nil {
				s.logger.Error("mark intent failed", "error", failErr, "ref", intent.Ref)
			}
			metrics.RecordCheckoutIntent(intent.Provider, "provider_error")
			return nil, domain.ErrInternal("create provider checkout session", err)
		}
		if err := s.checkouts.AttachSession(ctx, s.pool, intent.ID, session.ID); err != nil {
			return nil, domain.ErrInternal("attach provider session", err)
		}
		start.CheckoutURL = session.URL
	}

	metrics.RecordCheckoutIntent(intent.Provider, "created")
	s.logger.Info("checkout intent created",
		"ref", intent.Ref, "campaign_id", intent.CampaignID, "user_id", intent.UserID, "qty", intent.Qty)
	return start, nil
}

func (s *CheckoutService) insertIntent(ctx context.Context, draft *domain.CheckoutIntent) (*domain.CheckoutIntent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	intent, err := s.checkouts.Create(ctx, tx, draft)
	if err != nil {
		return nil, err
	}
	msg := "checkout intent created"
	if err := s.checkouts.InsertEvent(ctx, tx, &domain.CheckoutEvent{
		IntentID: intent.ID,
		State:    string(domain.IntentPending),
		Message:  &msg,
	}); err != nil {
		return nil, err
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewCheckoutCreatedEvent(intent)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return intent, nil
}

func (s *CheckoutService) replayStart(intent *domain.CheckoutIntent, userID uuid.UUID) (*domain.CheckoutStart, error) {
	if intent.UserID != userID {
		return nil, domain.ErrConflict("idempotency key already used")
	}
	return startFromIntent(intent), nil
}

func startFromIntent(intent *domain.CheckoutIntent) *domain.CheckoutStart {
	return &domain.CheckoutStart{
		Ref:             intent.Ref,
		State:           intent.State,
		Qty:             intent.Qty,
		TotalPriceMinor: intent.TotalPriceMinor,
		Currency:        intent.Currency,
		Provider:        intent.Provider,
	}
}

func limitError(eval policy.PurchaseEvaluation) error {
	switch eval.BreachedLimit {
	case policy.LimitPerUser:
		return domain.ErrUserLimit(int(eval.LimitValue))
	case policy.LimitSpend:
		return domain.ErrValidation(fmt.Sprintf("checkout total %d exceeds spend limit %d", eval.Requested, eval.LimitValue))
	default:
		return domain.ErrValidation(fmt.Sprintf("qty %d exceeds limit %d", eval.Requested, eval.LimitValue))
	}
}

// GetIntent returns the intent for its owner. Other users get NOT_FOUND.
func (s *CheckoutService) GetIntent(ctx context.Context, ref string, userID uuid.UUID) (*domain.CheckoutIntent, error) {
	intent, err := s.checkouts.FindByRef(ctx, s.pool, ref)
	if err != nil {
		return nil, domain.ErrInternal("find intent", err)
	}
	if intent == nil || intent.UserID != userID {
		return nil, domain.ErrNotFound("checkout", ref)
	}
	return intent, nil
}

// ConfirmAndAward verifies payment for a pending intent and, exactly once,
// creates the entry, allocates tickets and resolves an instant win.
// Confirming an already-confirmed intent replays the persisted result.
func (s *CheckoutService) ConfirmAndAward(ctx context.Context, p domain.ConfirmParams) (*domain.AwardPayload, error) {
	if res := s.inflight.Begin(ctx, p.Ref); !res.Allowed {
		return nil, domain.ErrPaymentPending("confirmation already in progress")
	}
	defer s.inflight.Done(p.Ref)

	intent, err := s.checkouts.FindByRef(ctx, s.pool, p.Ref)
	if err != nil {
		return nil, domain.ErrInternal("find intent", err)
	}
	if intent == nil {
		return nil, domain.ErrNotFound("checkout", p.Ref)
	}
	if intent.UserID != p.UserID || intent.Provider != p.Provider {
		s.logger.Warn("checkout confirmation by non-owner or wrong provider",
			"ref", p.Ref, "user_id", p.UserID, "provider", p.Provider)
		return nil, domain.ErrForbidden("checkout does not belong to caller")
	}
	if intent.State.Terminal() {
		metrics.RecordConfirmation("client", "replay")
		return s.settled(ctx, intent)
	}

	v, err := s.verify(ctx, intent, p.VerificationRef)
	if err != nil {
		metrics.RecordConfirmation("client", "pending")
		return nil, err
	}

	switch v.Status {
	case provider.PaymentPending:
		metrics.RecordConfirmation("client", "pending")
		return nil, domain.ErrPaymentPending("payment not completed yet")
	case provider.PaymentFailed:
		if err := s.failIntent(ctx, intent, domain.FailurePaymentFailed, v.Reason); err != nil {
			return nil, domain.ErrTransactionFailed(err)
		}
		metrics.RecordConfirmation("client", "payment_failed")
		return nil, domain.ErrPaymentFailed(domain.FailurePaymentFailed)
	}

	if v.Reference != "" && v.Reference != intent.Ref {
		s.logger.Warn("verification reference does not match checkout",
			"ref", intent.Ref, "verification_reference", v.Reference)
		return nil, domain.ErrForbidden("payment does not belong to this checkout")
	}
	if !amountMatches(intent, v.AmountMinor, v.Currency) {
		return nil, s.rejectMismatch(ctx, intent, v.AmountMinor, v.Currency, "client")
	}

	var paymentID *string
	if v.ProviderPaymentID != "" {
		paymentID = &v.ProviderPaymentID
	}
	return s.confirm(ctx, intent, paymentID, "client")
}

// verify asks the provider for a verdict. Any failure to get one is reported
// as PAYMENT_PENDING so the caller retries.
func (s *CheckoutService) verify(ctx context.Context, intent *domain.CheckoutIntent, ref string) (*provider.Verification, error) {
	verifier, err := s.verifiers.Get(intent.Provider)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if ref == "" {
		ref = intent.Ref
		if intent.ProviderSessionID != nil {
			ref = *intent.ProviderSessionID
		}
	}
	v, err := verifier.Verify(ctx, ref)
	if err != nil {
		s.logger.Warn("payment verification unavailable", "error", err, "ref", intent.Ref, "provider", intent.Provider)
		return nil, domain.ErrPaymentPending("payment verification unavailable, retry later")
	}
	return v, nil
}

func amountMatches(intent *domain.CheckoutIntent, amount int64, currency string) bool {
	return amount == intent.TotalPriceMinor && strings.EqualFold(currency, intent.Currency)
}

func (s *CheckoutService) rejectMismatch(ctx context.Context, intent *domain.CheckoutIntent, amount int64, currency, source string) error {
	s.logger.Error("paid amount does not match checkout",
		"ref", intent.Ref, "expected", intent.TotalPriceMinor, "expected_currency", intent.Currency,
		"paid", amount, "paid_currency", currency)
	msg := fmt.Sprintf("paid %d %s, expected %d %s", amount, currency, intent.TotalPriceMinor, intent.Currency)
	if err := s.failIntent(ctx, intent, domain.FailureAmountMismatch, msg); err != nil {
		return domain.ErrTransactionFailed(err)
	}
	metrics.RecordConfirmation(source, domain.FailureAmountMismatch)
	return domain.ErrPaymentFailed(domain.FailureAmountMismatch)
}

// confirm is the transactional core shared by client confirmation and webhooks.
func (s *CheckoutService) confirm(ctx context.Context, intent *domain.CheckoutIntent, paymentID *string, source string) (*domain.AwardPayload, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}
	defer tx.Rollback(ctx)

	moved, err := s.checkouts.MarkConfirmed(ctx, tx, intent.ID, paymentID)
	if err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}
	if !moved {
		// Another confirmation got there first.
		_ = tx.Rollback(ctx)
		metrics.RecordConfirmation(source, "replay")
		return s.reload(ctx, intent.Ref)
	}

	campaign, err := s.campaigns.FindByID(ctx, tx, intent.CampaignID)
	if err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}
	if campaign == nil {
		return nil, domain.ErrInternal("campaign of checkout missing", fmt.Errorf("campaign %s", intent.CampaignID))
	}
	if campaign.Status == domain.CampaignEnded {
		// The main draw has run; tickets allocated now could never win.
		_ = tx.Rollback(ctx)
		s.rejectPaid(ctx, intent, domain.FailureCampaignClosed, source)
		return nil, domain.ErrCampaignClosed(campaign.Status)
	}

	// The counter lock serializes every confirmation of this giveaway from here on,
	// which makes the per-user check below exact.
	if _, err := s.engine.LockCounter(ctx, tx, intent.GiveawayID); err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}
	held, err := s.entries.SumQtyByUser(ctx, tx, campaign.ID, intent.UserID)
	if err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}
	if eval := policy.EvaluatePurchaseLimits(policy.CampaignPurchaseLimits(campaign, 0), intent.Qty, held, 0); !eval.Allowed {
		_ = tx.Rollback(ctx)
		s.rejectPaid(ctx, intent, domain.FailureUserLimit, source)
		return nil, limitError(eval)
	}

	entry, err := s.entries.Create(ctx, tx, &domain.Entry{
		UserID:           intent.UserID,
		CampaignID:       campaign.ID,
		CheckoutIntentID: &intent.ID,
		Qty:              intent.Qty,
	})
	if err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}

	alloc, err := s.engine.Allocate(ctx, tx, domain.AllocateParams{
		GiveawayID: intent.GiveawayID,
		EntryID:    entry.ID,
		Qty:        intent.Qty,
		Cap:        campaign.MaxTicketsTotal,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrCapExceeded) {
			_ = tx.Rollback(ctx)
			s.rejectPaid(ctx, intent, domain.FailureSoldOut, source)
			return nil, domain.ErrSoldOut()
		}
		return nil, domain.ErrTransactionFailed(err)
	}

	stats, err := s.entries.Stats(ctx, tx, campaign.ID)
	if err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}
	prize, err := s.resolver.Resolve(ctx, tx, campaign.ID, intent.ID, domain.SalesProgress{
		Sold: stats.TicketsSold,
		Cap:  campaign.MaxTicketsTotal,
	})
	if err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}

	raw, _ := json.Marshal(map[string]interface{}{
		"entry_id":     entry.ID,
		"start_ticket": alloc.StartTicket,
		"end_ticket":   alloc.EndTicket,
		"source":       source,
	})
	msg := "payment confirmed, tickets allocated"
	if err := s.checkouts.InsertEvent(ctx, tx, &domain.CheckoutEvent{
		IntentID: intent.ID,
		State:    string(domain.IntentConfirmed),
		Message:  &msg,
		RawData:  raw,
	}); err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewCheckoutConfirmedEvent(intent, entry, alloc)); err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}
	if prize != nil {
		if err := s.outbox.Insert(ctx, tx, domain.NewInstantWinAwardedEvent(intent, prize)); err != nil {
			return nil, domain.ErrTransactionFailed(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}

	metrics.RecordConfirmation(source, "confirmed")
	metrics.RecordTicketsAllocated(intent.Qty)
	if prize != nil {
		metrics.RecordInstantWin()
	}
	s.logger.Info("checkout confirmed",
		"ref", intent.Ref, "campaign_id", campaign.ID, "entry_id", entry.ID,
		"start_ticket", alloc.StartTicket, "end_ticket", alloc.EndTicket, "won", prize != nil)

	refreshSnapshots(ctx, s.snapshots, s.queue, s.logger, campaign.ID, false)

	return domain.NewAwardPayload(intent, alloc, prize), nil
}

// reload re-reads an intent after losing the confirmation race.
func (s *CheckoutService) reload(ctx context.Context, ref string) (*domain.AwardPayload, error) {
	intent, err := s.checkouts.FindByRef(ctx, s.pool, ref)
	if err != nil {
		return nil, domain.ErrInternal("reload intent", err)
	}
	if intent == nil {
		return nil, domain.ErrNotFound("checkout", ref)
	}
	if !intent.State.Terminal() {
		return nil, domain.ErrPaymentPending("confirmation in progress")
	}
	return s.settled(ctx, intent)
}

// settled answers for a terminal intent without side effects.
func (s *CheckoutService) settled(ctx context.Context, intent *domain.CheckoutIntent) (*domain.AwardPayload, error) {
	if intent.State == domain.IntentFailed {
		reason := ""
		if intent.FailureReason != nil {
			reason = *intent.FailureReason
		}
		switch reason {
		case domain.FailureSoldOut:
			return nil, domain.ErrSoldOut()
		case domain.FailureCampaignClosed:
			return nil, domain.ErrCampaignClosed(domain.CampaignEnded)
		}
		return nil, domain.ErrPaymentFailed(reason)
	}
	return s.replay(ctx, intent)
}

// replay rebuilds the award payload from persisted rows.
func (s *CheckoutService) replay(ctx context.Context, intent *domain.CheckoutIntent) (*domain.AwardPayload, error) {
	entry, err := s.entries.FindByIntentID(ctx, s.pool, intent.ID)
	if err != nil {
		return nil, domain.ErrInternal("find entry", err)
	}
	if entry == nil {
		return nil, domain.ErrInternal("confirmed checkout has no entry", fmt.Errorf("intent %s", intent.ID))
	}
	alloc, err := s.tickets.FindAllocationByEntry(ctx, s.pool, entry.ID)
	if err != nil {
		return nil, domain.ErrInternal("find allocation", err)
	}
	award, err := s.prizes.FindAwardByIntent(ctx, s.pool, intent.ID)
	if err != nil {
		return nil, domain.ErrInternal("find award", err)
	}
	var prize *domain.InstantWinPrize
	if award != nil {
		prize, err = s.prizes.FindByID(ctx, s.pool, award.PrizeID)
		if err != nil {
			return nil, domain.ErrInternal("find prize", err)
		}
	}
	return domain.NewAwardPayload(intent, alloc, prize), nil
}

// rejectPaid fails an intent whose payment succeeded but which cannot be
// fulfilled. The failed event tells downstream to refund.
func (s *CheckoutService) rejectPaid(ctx context.Context, intent *domain.CheckoutIntent, reason, source string) {
	if err := s.failIntent(ctx, intent, reason, "paid checkout rejected: "+reason); err != nil {
		s.logger.Error("mark paid intent failed", "error", err, "ref", intent.Ref, "reason", reason)
	}
	metrics.RecordConfirmation(source, reason)
	s.logger.Warn("paid checkout rejected, refund required",
		"ref", intent.Ref, "reason", reason, "total_price_minor", intent.TotalPriceMinor)
}

// failIntent moves a pending intent to failed with its audit and outbox rows.
// An intent that already left pending is left alone.
func (s *CheckoutService) failIntent(ctx context.Context, intent *domain.CheckoutIntent, reason, message string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	moved, err := s.checkouts.MarkFailed(ctx, tx, intent.ID, reason)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	if message == "" {
		message = reason
	}
	if err := s.checkouts.InsertEvent(ctx, tx, &domain.CheckoutEvent{
		IntentID: intent.ID,
		State:    string(domain.IntentFailed),
		Message:  &message,
	}); err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewCheckoutFailedEvent(intent, reason)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// HandleStripeWebhook processes a signed Stripe event. A nil return
// acknowledges the event; errors other than UNAUTHORIZED make Stripe retry.
func (s *CheckoutService) HandleStripeWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	if s.stripe == nil {
		return domain.ErrInternal("stripe webhooks not configured", nil)
	}
	event, err := s.stripe.VerifyWebhookSignature(payload, sigHeader)
	if err != nil {
		return domain.ErrUnauthorized(fmt.Sprintf("webhook verification failed: %v", err))
	}

	switch event.Type {
	case provider.StripeSessionCompleted,
		provider.StripeSessionAsyncPaymentSucceeded,
		provider.StripeSessionAsyncPaymentFailed,
		provider.StripeSessionExpired:
	default:
		s.logger.Info("unhandled stripe event type", "type", event.Type, "event_id", event.ID)
		return nil
	}

	session, err := provider.ParseCheckoutSessionData(event.Data)
	if err != nil {
		return domain.ErrValidation(err.Error())
	}
	intent, err := s.findSessionIntent(ctx, session)
	if err != nil {
		return domain.ErrInternal("find intent for session", err)
	}
	if intent == nil {
		s.logger.Warn("stripe event for unknown checkout",
			"event_id", event.ID, "session_id", session.ID, "client_reference_id", session.ClientReferenceID)
		return nil
	}

	switch event.Type {
	case provider.StripeSessionCompleted:
		if session.PaymentStatus != "paid" {
			s.logger.Info("checkout completed with payment outstanding", "ref", intent.Ref, "payment_status", session.PaymentStatus)
			return nil
		}
		return s.confirmFromWebhook(ctx, intent, session)
	case provider.StripeSessionAsyncPaymentSucceeded:
		return s.confirmFromWebhook(ctx, intent, session)
	case provider.StripeSessionAsyncPaymentFailed:
		return s.failFromWebhook(ctx, intent, domain.FailurePaymentFailed)
	default:
		return s.failFromWebhook(ctx, intent, domain.FailureExpired)
	}
}

func (s *CheckoutService) findSessionIntent(ctx context.Context, session *provider.CheckoutSessionData) (*domain.CheckoutIntent, error) {
	if session.ClientReferenceID != "" {
		intent, err := s.checkouts.FindByRef(ctx, s.pool, session.ClientReferenceID)
		if err != nil || intent != nil {
			return intent, err
		}
	}
	if session.ID == "" {
		return nil, nil
	}
	return s.checkouts.FindBySessionID(ctx, s.pool, session.ID)
}

func (s *CheckoutService) confirmFromWebhook(ctx context.Context, intent *domain.CheckoutIntent, session *provider.CheckoutSessionData) error {
	if intent.State.Terminal() {
		s.logger.Info("stripe event for settled checkout", "ref", intent.Ref, "state", intent.State)
		return nil
	}
	if !amountMatches(intent, session.AmountTotal, session.Currency) {
		err := s.rejectMismatch(ctx, intent, session.AmountTotal, session.Currency, "webhook")
		return ackBusinessOutcome(err)
	}
	var paymentID *string
	if session.PaymentIntent != "" {
		paymentID = &session.PaymentIntent
	}
	_, err := s.confirm(ctx, intent, paymentID, "webhook")
	return ackBusinessOutcome(err)
}

func (s *CheckoutService) failFromWebhook(ctx context.Context, intent *domain.CheckoutIntent, reason string) error {
	if intent.State.Terminal() {
		return nil
	}
	if err := s.failIntent(ctx, intent, reason, "stripe reported "+reason); err != nil {
		return domain.ErrTransactionFailed(err)
	}
	metrics.RecordConfirmation("webhook", reason)
	return nil
}

// ackBusinessOutcome swallows terminal checkout outcomes so the provider
// stops redelivering. Transient failures pass through.
func ackBusinessOutcome(err error) error {
	if err == nil {
		return nil
	}
	for _, code := range []string{domain.CodeSoldOut, domain.CodeUserLimit, domain.CodePaymentFailed, domain.CodeCampaignClosed} {
		if domain.HasCode(err, code) {
			return nil
		}
	}
	return err
}

// ExpireStale fails pending intents older than olderThan and returns how many moved.
func (s *CheckoutService) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, domain.ErrTransactionFailed(err)
	}
	defer tx.Rollback(ctx)

	expired, err := s.checkouts.ExpirePending(ctx, tx, s.now().Add(-olderThan), expireBatchSize)
	if err != nil {
		return 0, domain.ErrInternal("expire pending intents", err)
	}
	msg := "checkout expired before payment"
	for i := range expired {
		intent := &expired[i]
		if err := s.checkouts.InsertEvent(ctx, tx, &domain.CheckoutEvent{
			IntentID: intent.ID,
			State:    string(domain.IntentFailed),
			Message:  &msg,
		}); err != nil {
			return 0, domain.ErrInternal("record expiry", err)
		}
		if err := s.outbox.Insert(ctx, tx, domain.NewCheckoutFailedEvent(intent, domain.FailureExpired)); err != nil {
			return 0, domain.ErrInternal("record expiry event", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, domain.ErrTransactionFailed(err)
	}

	if len(expired) > 0 {
		s.logger.Info("expired stale checkout intents", "count", len(expired))
	}
	return len(expired), nil
}

// RecordRefund stamps an operator refund on a confirmed intent. The entry and
// its ticket numbers are kept.
func (s *CheckoutService) RecordRefund(ctx context.Context, ref string, adminID uuid.UUID, note string) (*domain.CheckoutIntent, error) {
	intent, err := s.checkouts.FindByRef(ctx, s.pool, ref)
	if err != nil {
		return nil, domain.ErrInternal("find intent", err)
	}
	if intent == nil {
		return nil, domain.ErrNotFound("checkout", ref)
	}
	if intent.State != domain.IntentConfirmed {
		return nil, domain.ErrConflict(fmt.Sprintf("checkout %s is %s, only confirmed checkouts can be refunded", ref, intent.State))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}
	defer tx.Rollback(ctx)

	moved, err := s.checkouts.MarkRefunded(ctx, tx, intent.ID)
	if err != nil {
		return nil, domain.ErrInternal("mark refunded", err)
	}
	if !moved {
		return nil, domain.ErrConflict(fmt.Sprintf("checkout %s already refunded", ref))
	}
	raw, _ := json.Marshal(map[string]string{"admin_id": adminID.String()})
	if err := s.checkouts.InsertEvent(ctx, tx, &domain.CheckoutEvent{
		IntentID: intent.ID,
		State:    domain.CheckoutEventRefunded,
		Message:  &note,
		RawData:  raw,
	}); err != nil {
		return nil, domain.ErrInternal("record refund", err)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewCheckoutRefundedEvent(intent, adminID, note)); err != nil {
		return nil, domain.ErrInternal("record refund event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrTransactionFailed(err)
	}

	s.logger.Info("checkout refund recorded", "ref", ref, "admin_id", adminID)
	return s.checkouts.FindByRef(ctx, s.pool, ref)
}
