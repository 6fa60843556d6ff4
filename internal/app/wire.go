package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/giveaways/internal/auth"
	"github.com/attaboy/giveaways/internal/guard"
	"github.com/attaboy/giveaways/internal/handler"
	adminhandler "github.com/attaboy/giveaways/internal/handler/admin"
	"github.com/attaboy/giveaways/internal/infra"
	"github.com/attaboy/giveaways/internal/jobs"
	"github.com/attaboy/giveaways/internal/ledger"
	"github.com/attaboy/giveaways/internal/metrics"
	"github.com/attaboy/giveaways/internal/projection"
	"github.com/attaboy/giveaways/internal/provider"
	"github.com/attaboy/giveaways/internal/repository"
	"github.com/attaboy/giveaways/internal/service"
	"github.com/attaboy/giveaways/internal/settlement"
	"github.com/go-chi/chi/v5"
)

// Services is the wired service graph shared by the API and the worker.
type Services struct {
	Checkout  *service.CheckoutService
	Draws     *service.DrawService
	Admin     *service.AdminService
	Snapshots *projection.Publisher
	Queue     *jobs.Queue
	Runner    *jobs.Runner
}

// ServiceDeps holds the infrastructure NewServices builds on.
type ServiceDeps struct {
	Pool   repository.DB
	Config *infra.Config
	// Cache backs snapshot reads. Nil uses an in-process store.
	Cache projection.Store
	// RNG overrides both random sources, for tests.
	RNG    settlement.RandomSource
	Owner  string
	Logger *slog.Logger
}

// NewServices wires repositories, providers and services.
func NewServices(deps ServiceDeps) (*Services, error) {
	pool, cfg, logger := deps.Pool, deps.Config, deps.Logger

	// Repositories
	campaignRepo := repository.NewCampaignRepository()
	checkoutRepo := repository.NewCheckoutRepository()
	entryRepo := repository.NewEntryRepository()
	ticketRepo := repository.NewTicketRepository()
	prizeRepo := repository.NewPrizeRepository()
	winnerRepo := repository.NewWinnerRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Snapshots
	cache := deps.Cache
	if cache == nil {
		cache = projection.NewInMemoryStore()
	}
	publisher := projection.NewPublisher(pool, projection.PublisherDeps{
		Campaigns: campaignRepo,
		Entries:   entryRepo,
		Prizes:    prizeRepo,
		Winners:   winnerRepo,
		Snapshots: repository.NewSnapshotRepository(),
	}, cache, cfg.SnapshotCacheTTL, logger)

	// Jobs
	queue := jobs.NewQueue(pool, repository.NewJobRepository(),
		jobs.Backoff{Base: cfg.JobRetryBackoff, Max: cfg.JobRetryMaxDelay}, cfg.JobMaxAttempts, logger)
	leases := jobs.NewLeaseManager(pool, repository.NewLeaseRepository(), logger)

	// External providers
	drawRNG, instantRNG := randomSources(deps.RNG, cfg, logger)
	stripe := provider.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	verifiers := provider.NewRegistry()
	verifiers.Register(service.ProviderStripe, provider.NewGuardedVerifier(
		service.ProviderStripe, stripe, cfg.ProviderVerifyTimeout, guard.NewCircuitBreaker(5, 30*time.Second)))

	refs, err := service.NewRefGenerator(cfg.NodeID)
	if err != nil {
		return nil, err
	}

	// Services
	checkoutSvc := service.NewCheckoutService(pool, service.CheckoutDeps{
		Campaigns: campaignRepo,
		Checkouts: checkoutRepo,
		Entries:   entryRepo,
		Tickets:   ticketRepo,
		Prizes:    prizeRepo,
		Outbox:    outboxRepo,
		Engine:    ledger.NewEngine(ticketRepo),
		Resolver:  settlement.NewInstantWinResolver(prizeRepo, instantRNG, logger),
		Verifiers: verifiers,
		Stripe:    stripe,
		Snapshots: publisher,
		Queue:     queue,
		Refs:      refs,
	}, service.CheckoutConfig{
		MaxSpendPerCheckoutMinor: cfg.MaxSpendPerCheckout,
		SuccessURL:               cfg.CheckoutSuccessURL,
		CancelURL:                cfg.CheckoutCancelURL,
	}, logger)

	drawSvc := service.NewDrawService(pool, service.DrawDeps{
		Campaigns: campaignRepo,
		Entries:   entryRepo,
		Tickets:   ticketRepo,
		Winners:   winnerRepo,
		Outbox:    outboxRepo,
		Leases:    leases,
		Snapshots: publisher,
		Queue:     queue,
		RNG:       drawRNG,
	}, service.DrawConfig{
		BatchSize:   cfg.DrawBatchSize,
		GracePeriod: cfg.DrawGracePeriod,
		LeaseTTL:    cfg.JobLeaseTTL,
		Owner:       deps.Owner,
	}, logger)

	adminSvc := service.NewAdminService(pool, campaignRepo, prizeRepo, outboxRepo, queue, publisher, logger)

	runner := jobs.NewRunner(queue, deps.Owner, cfg.JobLeaseTTL, cfg.JobBatchSize, logger)
	service.RegisterJobHandlers(runner, checkoutSvc, drawSvc, publisher, cfg.IntentExpiry, logger)

	return &Services{
		Checkout:  checkoutSvc,
		Draws:     drawSvc,
		Admin:     adminSvc,
		Snapshots: publisher,
		Queue:     queue,
		Runner:    runner,
	}, nil
}

// randomSources returns the main draw source and the instant-win source.
// Instant wins are picked under the giveaway counter lock, so they never use
// the Random.org network call.
func randomSources(override settlement.RandomSource, cfg *infra.Config, logger *slog.Logger) (draw, instant settlement.RandomSource) {
	if override != nil {
		return override, override
	}
	return provider.NewRandomOrgClient(cfg.RandomOrgAPIKey, logger), settlement.NewCryptoSource()
}

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Services *Services
	JWTMgr   *auth.JWTManager
	Logger   *slog.Logger
	Health   map[string]handler.Checker

	CORSAllowedOrigins string
	JobTriggerToken    string
	CheckoutRate       float64
	CheckoutBurst      int
}

// NewJWTManager parses the configured expiries.
func NewJWTManager(cfg *infra.Config) (*auth.JWTManager, error) {
	userExpiry, err := time.ParseDuration(cfg.JWTUserExpiry)
	if err != nil {
		return nil, fmt.Errorf("parse user JWT expiry: %w", err)
	}
	adminExpiry, err := time.ParseDuration(cfg.JWTAdminExpiry)
	if err != nil {
		return nil, fmt.Errorf("parse admin JWT expiry: %w", err)
	}
	return auth.NewJWTManager(cfg.JWTSecret, userExpiry, adminExpiry), nil
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	svc := deps.Services
	jwtMgr := deps.JWTMgr
	logger := deps.Logger

	// Handlers
	checkoutHandler := handler.NewCheckoutHandler(svc.Checkout)
	webhookHandler := handler.NewWebhookHandler(svc.Checkout, logger)
	snapshotHandler := handler.NewSnapshotHandler(svc.Snapshots)
	jobsHandler := handler.NewJobsHandler(svc.Draws, svc.Runner, logger)

	// Admin handlers
	campaignAdmin := adminhandler.NewCampaignAdminHandler(svc.Admin)
	checkoutAdmin := adminhandler.NewCheckoutAdminHandler(svc.Checkout)
	jobAdmin := adminhandler.NewJobAdminHandler(svc.Admin)

	limiter := guard.NewRateLimiter(deps.CheckoutRate, deps.CheckoutBurst)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(metrics.InstrumentHandler)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.CORSAllowedOrigins))
	r.Use(handler.JSONContentType)

	// Public
	r.Get("/health", handler.HealthHandler(deps.Health))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/campaigns/{id}/snapshot", snapshotHandler.GetCampaignSnapshot)
	r.Get("/campaigns/{id}/winner", snapshotHandler.GetWinnerSnapshot)

	// Webhooks (no auth; raw body required for signature verification)
	r.Post("/webhooks/stripe", webhookHandler.HandleStripeWebhook)

	// User-authenticated routes
	r.Route("/checkout/intents", func(r chi.Router) {
		r.Use(auth.AuthenticateUser(jwtMgr))

		r.With(handler.RateLimit(limiter, logger)).Post("/", checkoutHandler.CreateIntent)
		r.Get("/{ref}", checkoutHandler.GetIntent)
		r.With(handler.RateLimit(limiter, logger)).Post("/{ref}/confirm", checkoutHandler.Confirm)
	})

	// Job trigger (shared secret)
	r.Route("/internal/jobs", func(r chi.Router) {
		r.Use(auth.RequireJobToken(deps.JobTriggerToken))

		r.Post("/draw", jobsHandler.RunDraw)
		r.Post("/run", jobsHandler.RunJobs)
	})

	// Admin-authenticated routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/{id}/prizes", campaignAdmin.ListPrizes)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.WriteRoles()...))
				r.Post("/", campaignAdmin.CreateCampaign)
				r.Patch("/{id}/status", campaignAdmin.UpdateCampaignStatus)
				r.Post("/{id}/prizes", campaignAdmin.CreatePrize)
				r.Post("/{id}/snapshot", campaignAdmin.RefreshSnapshot)
			})
		})

		r.With(auth.RequireRole(auth.WriteRoles()...)).Post("/checkouts/{ref}/refund", checkoutAdmin.RecordRefund)
		r.Get("/jobs/dead", jobAdmin.ListDead)
	})

	return r
}
