package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Provider.HTTPTimeout)
	assert.Equal(t, 100, cfg.Provider.BatchSize)
	assert.Equal(t, -0.3, cfg.Reconciler.ReviewSentimentThreshold)
	assert.Equal(t, 10000, cfg.Reconciler.DedupMaxEntries)
	assert.Equal(t, "@every 5m", cfg.Worker.RetryDispatchSpec)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("VOICE_HTTP_TIMEOUT", "5s")
	t.Setenv("REVIEW_SENTIMENT_THRESHOLD", "-0.5")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_NAME", "/tmp/voiceops.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Provider.HTTPTimeout)
	assert.Equal(t, -0.5, cfg.Reconciler.ReviewSentimentThreshold)
	assert.Contains(t, cfg.Database.DSN(), "file:/tmp/voiceops.db")
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
}

func TestDatabaseConfig_PostgresDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", User: "u", Password: "p", Host: "h", Port: 5432, Name: "n", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/n?sslmode=disable", d.DSN())
}
