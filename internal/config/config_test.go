package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 24*time.Hour, cfg.DraftAbandonAfter)
	assert.Equal(t, DraftRetentionKeep, cfg.DraftRetention)
	assert.Equal(t, "@every 10m", cfg.SweepSchedule)
	assert.Equal(t, 30, cfg.InvoiceDueDays)
	assert.Equal(t, "marketplace.orders", cfg.KafkaTopic)
	assert.Equal(t, "Europe/Oslo", cfg.Location().String())
	assert.False(t, cfg.IsProd())
	assert.Contains(t, cfg.DSN(), "host=localhost port=5432")
}

func TestLoad_JWTSecretRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", ":9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/m")
	t.Setenv("DRAFT_ABANDON_AFTER", "90m")
	t.Setenv("DRAFT_RETENTION", "DELETE")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("GO_ENV", "prod")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, "postgres://u:p@db:5432/m", cfg.DSN())
	assert.Equal(t, 90*time.Minute, cfg.DraftAbandonAfter)
	assert.Equal(t, DraftRetentionDelete, cfg.DraftRetention)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.IsProd())
}

func TestLoad_InvalidRetention(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DRAFT_RETENTION", "archive")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MARKET_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	assert.Error(t, err)
}
