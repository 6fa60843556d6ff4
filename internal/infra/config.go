package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const insecureJWTSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5435"`
	PGUser      string `env:"PGUSER" envDefault:"giveaways"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"giveaways"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"giveaways"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	// Redis snapshot cache
	RedisURL         string        `env:"REDIS_URL" envDefault:"redis://localhost:6380"`
	RedisEnabled     bool          `env:"REDIS_ENABLED" envDefault:"false"`
	SnapshotCacheTTL time.Duration `env:"SNAPSHOT_CACHE_TTL" envDefault:"10m"`

	// JWT
	JWTSecret      string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTUserExpiry  string `env:"JWT_USER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Job trigger
	JobTriggerToken string `env:"JOB_TRIGGER_TOKEN"`

	// Server
	APIPort    int   `env:"API_PORT" envDefault:"3100"`
	WorkerPort int   `env:"WORKER_PORT" envDefault:"3101"`
	NodeID     int64 `env:"NODE_ID" envDefault:"1"`

	// Kafka
	KafkaBrokers       string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled       bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`

	// External services
	RandomOrgAPIKey       string        `env:"RANDOM_ORG_API_KEY"`
	StripeSecretKey       string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret   string        `env:"STRIPE_WEBHOOK_SECRET"`
	ProviderVerifyTimeout time.Duration `env:"PROVIDER_VERIFY_TIMEOUT" envDefault:"8s"`
	CheckoutSuccessURL    string        `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:3000/checkout/success"`
	CheckoutCancelURL     string        `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:3000/checkout/cancel"`

	// Checkout
	IntentExpiry          time.Duration `env:"INTENT_EXPIRY" envDefault:"24h"`
	CheckoutRatePerSecond float64       `env:"CHECKOUT_RATE_PER_SECOND" envDefault:"2"`
	CheckoutRateBurst     int           `env:"CHECKOUT_RATE_BURST" envDefault:"5"`
	MaxSpendPerCheckout   int64         `env:"MAX_SPEND_PER_CHECKOUT_MINOR" envDefault:"0"`

	// Draw & jobs
	DrawBatchSize    int           `env:"DRAW_BATCH_SIZE" envDefault:"10"`
	DrawGracePeriod  time.Duration `env:"DRAW_GRACE_PERIOD" envDefault:"168h"`
	DrawSchedule     string        `env:"DRAW_SCHEDULE" envDefault:"@every 1m"`
	JobSchedule      string        `env:"JOB_SCHEDULE" envDefault:"@every 10s"`
	JobLeaseTTL      time.Duration `env:"JOB_LEASE_TTL" envDefault:"60s"`
	JobMaxAttempts   int           `env:"JOB_MAX_ATTEMPTS" envDefault:"5"`
	JobRetryBackoff  time.Duration `env:"JOB_RETRY_BACKOFF" envDefault:"5s"`
	JobRetryMaxDelay time.Duration `env:"JOB_RETRY_MAX_DELAY" envDefault:"5m"`
	JobBatchSize     int           `env:"JOB_BATCH_SIZE" envDefault:"20"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.DrawBatchSize < 1 {
		return fmt.Errorf("DRAW_BATCH_SIZE must be positive, got %d", c.DrawBatchSize)
	}
	if c.JobLeaseTTL < 3*time.Second {
		return fmt.Errorf("JOB_LEASE_TTL is too short (%s); minimum 3s", c.JobLeaseTTL)
	}
	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be positive, got %d", c.JobMaxAttempts)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == insecureJWTSecret {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if len(c.JobTriggerToken) < 24 {
		return fmt.Errorf("JOB_TRIGGER_TOKEN is missing or too short (%d chars); minimum 24 characters required", len(c.JobTriggerToken))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
