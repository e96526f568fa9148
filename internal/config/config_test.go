package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadConfig()

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "hybrid", cfg.CacheBackend)
	assert.Equal(t, 3, cfg.EnrichmentRetryCount)
	assert.Equal(t, 2*time.Second, cfg.EnrichmentRetryDelay)
	assert.Equal(t, 1, cfg.ExternalSyncMaxRetries)
	assert.Equal(t, 200*time.Second, cfg.ExternalSyncRetryDelay)
	assert.Equal(t, 350*time.Millisecond, cfg.ExternalSyncItemDelay)
	assert.True(t, cfg.EnrichmentEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("EXTERNAL_SYNC_ITEM_DELAY", "1s")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("ENRICHMENT_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, time.Second, cfg.ExternalSyncItemDelay)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.False(t, cfg.EnrichmentEnabled)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("ENRICHMENT_RETRY_DELAY", "soon")

	_, err := LoadConfig()

	assert.ErrorContains(t, err, "ENRICHMENT_RETRY_DELAY")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		HTTPPort:          0,
		CacheBackend:      "sqlite",
		LogLevel:          "trace",
		LogFormat:         "xml",
		JWTSecret:         "short",
		EnrichmentWorkers: 0,
	}

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_PORT")
	assert.Contains(t, err.Error(), "CACHE_BACKEND")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
	assert.Contains(t, err.Error(), "LOG_FORMAT")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "ENRICHMENT_WORKERS")
}

func TestRedisAddr(t *testing.T) {
	cfg := &Config{RedisURL: "redis://cache:6379"}
	assert.Equal(t, "cache:6379", cfg.RedisAddr())

	cfg.RedisURL = "rediss://secure:6380"
	assert.Equal(t, "secure:6380", cfg.RedisAddr())
}
