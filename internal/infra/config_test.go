package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.DrawBatchSize)
	assert.Equal(t, 7*24*time.Hour, cfg.DrawGracePeriod)
	assert.Equal(t, 60*time.Second, cfg.JobLeaseTTL)
	assert.Equal(t, 5, cfg.JobMaxAttempts)
	assert.Equal(t, 8*time.Second, cfg.ProviderVerifyTimeout)
	assert.Equal(t, "@every 1m", cfg.DrawSchedule)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DRAW_GRACE_PERIOD", "48h")
	t.Setenv("JOB_TRIGGER_TOKEN", "tok")
	t.Setenv("CHECKOUT_RATE_PER_SECOND", "0.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, cfg.DrawGracePeriod)
	assert.Equal(t, "tok", cfg.JobTriggerToken)
	assert.InDelta(t, 0.5, cfg.CheckoutRatePerSecond, 1e-9)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecret:       "0123456789abcdef0123456789abcdef",
			JobTriggerToken: "trigger-token-0123456789ab",
			DrawBatchSize:   10,
			JobLeaseTTL:     time.Minute,
			JobMaxAttempts:  5,
		}
	}

	assert.NoError(t, valid().Validate())

	c := valid()
	c.JWTSecret = insecureJWTSecret
	assert.Error(t, c.Validate())

	c = valid()
	c.JobTriggerToken = "short"
	assert.ErrorContains(t, c.Validate(), "JOB_TRIGGER_TOKEN")

	c = valid()
	c.JobTriggerToken = ""
	c.AllowInsecureDefaults = true
	assert.NoError(t, c.Validate())

	c = valid()
	c.JobLeaseTTL = time.Second
	c.AllowInsecureDefaults = true
	assert.Error(t, c.Validate())
}

func TestConfig_DSN(t *testing.T) {
	c := &Config{PGUser: "u", PGPassword: "p", PGHost: "h", PGPort: 5432, PGDatabase: "d"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.DSN())

	c.DatabaseURL = "postgres://other"
	assert.Equal(t, "postgres://other", c.DSN())
}
