package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/giveaways/internal/app"
	"github.com/attaboy/giveaways/internal/domain"
	"github.com/attaboy/giveaways/internal/handler"
	"github.com/attaboy/giveaways/internal/infra"
	"github.com/attaboy/giveaways/internal/metrics"
	"github.com/attaboy/giveaways/internal/projection"
	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const expireSchedule = "@every 15m"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	var cache projection.Store
	if cfg.RedisEnabled {
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		cache = projection.NewRedisStore(rdb, "giveaways:")
	}

	hostname, _ := os.Hostname()
	services, err := app.NewServices(app.ServiceDeps{
		Pool:   pool,
		Config: cfg,
		Cache:  cache,
		Owner:  fmt.Sprintf("worker-%s-%d", hostname, os.Getpid()),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}

	cronLog := cronLogger{logger}
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))

	// The schedules only enqueue; the dedupe key keeps one pending job per kind.
	enqueue := func(kind domain.JobKind) func() {
		return func() {
			if _, err := services.Queue.Enqueue(ctx, nil, kind, struct{}{}, time.Now(), string(kind)); err != nil {
				logger.Error("enqueue scheduled job", "kind", kind, "error", err)
			}
		}
	}
	if _, err := c.AddFunc(cfg.DrawSchedule, enqueue(domain.JobKindDrawRun)); err != nil {
		return fmt.Errorf("schedule draw: %w", err)
	}
	if _, err := c.AddFunc(expireSchedule, enqueue(domain.JobKindCheckoutExpire)); err != nil {
		return fmt.Errorf("schedule intent expiry: %w", err)
	}
	if _, err := c.AddFunc(cfg.JobSchedule, func() {
		summary, err := services.Runner.RunOnce(ctx)
		if err != nil {
			logger.Error("job runner pass failed", "error", err)
			return
		}
		if summary.Claimed > 0 {
			logger.Info("job runner pass",
				"claimed", summary.Claimed,
				"succeeded", summary.Succeeded,
				"retried", summary.Retried,
				"dead", summary.Dead,
			)
		}
	}); err != nil {
		return fmt.Errorf("schedule job runner: %w", err)
	}

	r := chi.NewRouter()
	r.Get("/health", handler.HealthHandler(map[string]handler.Checker{
		"postgres": func(ctx context.Context) error { return infra.HealthCheck(ctx, pool) },
	}))
	r.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Start()
		logger.Info("worker scheduler started",
			"draw_schedule", cfg.DrawSchedule,
			"job_schedule", cfg.JobSchedule,
		)
		<-gctx.Done()
		<-c.Stop().Done()
		logger.Info("worker scheduler stopped")
		return nil
	})
	g.Go(func() error {
		logger.Info("worker http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("worker http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
