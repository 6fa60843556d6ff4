package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/giveaways/internal/app"
	"github.com/attaboy/giveaways/internal/handler"
	"github.com/attaboy/giveaways/internal/infra"
	"github.com/attaboy/giveaways/internal/projection"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
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

	if cfg.AutoMigrate {
		if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	health := map[string]handler.Checker{
		"postgres": func(ctx context.Context) error { return infra.HealthCheck(ctx, pool) },
	}

	var cache projection.Store
	if cfg.RedisEnabled {
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		cache = projection.NewRedisStore(rdb, "giveaways:")
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("connected to redis")
	}

	jwtMgr, err := app.NewJWTManager(cfg)
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	services, err := app.NewServices(app.ServiceDeps{
		Pool:   pool,
		Config: cfg,
		Cache:  cache,
		Owner:  fmt.Sprintf("api-%s-%d", hostname, os.Getpid()),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}

	r := app.NewRouter(app.RouterDeps{
		Services:           services,
		JWTMgr:             jwtMgr,
		Logger:             logger,
		Health:             health,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		JobTriggerToken:    cfg.JobTriggerToken,
		CheckoutRate:       cfg.CheckoutRatePerSecond,
		CheckoutBurst:      cfg.CheckoutRateBurst,
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
