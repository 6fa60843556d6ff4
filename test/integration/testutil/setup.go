//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/giveaways/internal/app"
	"github.com/attaboy/giveaways/internal/auth"
	"github.com/attaboy/giveaways/internal/handler"
	"github.com/attaboy/giveaways/internal/infra"
	"github.com/attaboy/giveaways/internal/settlement"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TestJWTSecret           = "integration-test-secret"
	TestStripeWebhookSecret = "whsec_test_integration_secret"
	TestJobToken            = "integration-job-token"
	TestDBHost              = "localhost"
	TestDBPort              = 5435
	TestDBUser              = "giveaways"
	TestDBPass              = "giveaways"
	TestDBName              = "giveaways_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server   *httptest.Server
	Pool     *pgxpool.Pool
	JWTMgr   *auth.JWTManager
	Services *app.Services
	t        *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "giveaways")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to the main database to create the test database
	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		_, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName))
		if err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}

	return nil
}

func runMigrations(pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// gen_random_uuid() is core from PG13; older servers need pgcrypto.
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS pgcrypto"); err != nil {
		return fmt.Errorf("create pgcrypto extension: %w", err)
	}

	dsn := testDSN()

	// Find the project root by looking for go.mod
	projectRoot := findProjectRoot()

	migratePath := fmt.Sprintf("file://%s/db/migrations", projectRoot)

	m, err := newMigrate(migratePath, dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err.Error() != "no change" {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

func findProjectRoot() string {
	// Walk up from current working directory looking for go.mod
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(dir + "/go.mod"); err == nil {
			return dir
		}
		parent := dir[:max(0, len(dir)-1)]
		for parent != "" && parent[len(parent)-1] != '/' {
			parent = parent[:len(parent)-1]
		}
		if parent == "" || parent == "/" {
			break
		}
		dir = parent[:len(parent)-1]
	}
	// Fallback: assume we're inside the project
	return "."
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
			return
		}

		if err := runMigrations(sharedPool); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			sharedPool.Close()
			sharedPool = nil
			return
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// TestConfig returns the configuration integration environments run with.
func TestConfig() *infra.Config {
	return &infra.Config{
		JWTSecret:             TestJWTSecret,
		JWTUserExpiry:         "1h",
		JWTAdminExpiry:        "1h",
		JobTriggerToken:       TestJobToken,
		NodeID:                7,
		StripeWebhookSecret:   TestStripeWebhookSecret,
		ProviderVerifyTimeout: 2 * time.Second,
		SnapshotCacheTTL:      time.Minute,
		IntentExpiry:          24 * time.Hour,
		CheckoutRatePerSecond: 1000,
		CheckoutRateBurst:     1000,
		DrawBatchSize:         10,
		DrawGracePeriod:       7 * 24 * time.Hour,
		JobLeaseTTL:           time.Minute,
		JobMaxAttempts:        3,
		JobRetryBackoff:       time.Second,
		JobRetryMaxDelay:      time.Minute,
		JobBatchSize:          20,
	}
}

// NewTestEnv creates a test environment with an httptest.Server backed by the real router and test DB.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	return NewTestEnvWithConfig(t, TestConfig())
}

// NewTestEnvWithConfig is NewTestEnv with a caller-adjusted configuration.
func NewTestEnvWithConfig(t *testing.T, cfg *infra.Config) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	jwtMgr, err := app.NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	services, err := app.NewServices(app.ServiceDeps{
		Pool:   pool,
		Config: cfg,
		RNG:    settlement.NewSeededSource(1),
		Owner:  "integration",
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("wire services: %v", err)
	}

	router := app.NewRouter(app.RouterDeps{
		Services:           services,
		JWTMgr:             jwtMgr,
		Logger:             logger,
		Health: map[string]handler.Checker{
			"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
		},
		CORSAllowedOrigins: "*",
		JobTriggerToken:    cfg.JobTriggerToken,
		CheckoutRate:       cfg.CheckoutRatePerSecond,
		CheckoutBurst:      cfg.CheckoutRateBurst,
	})

	server := httptest.NewServer(router)

	env := &TestEnv{
		Server:   server,
		Pool:     pool,
		JWTMgr:   jwtMgr,
		Services: services,
		t:        t,
	}

	t.Cleanup(func() {
		server.Close()
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}
