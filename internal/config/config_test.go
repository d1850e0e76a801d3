package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("requires the callback secret", func(t *testing.T) {
		t.Setenv("PAGEBOUND_CALLBACK_SECRET", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("PAGEBOUND_CALLBACK_SECRET", "secret")
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.Address)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.Equal(t, "pagebound-sources", cfg.SourceBucket)
		assert.Equal(t, 3, cfg.MaxRetries)
		assert.Equal(t, 5*time.Minute, cfg.SignedURLTTL)
		assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	})

	t.Run("reads overrides", func(t *testing.T) {
		t.Setenv("PAGEBOUND_CALLBACK_SECRET", "secret")
		t.Setenv("PAGEBOUND_ADDRESS", ":9090")
		t.Setenv("PAGEBOUND_MAX_RETRIES", "7")
		t.Setenv("PAGEBOUND_SIGNED_TTL", "90s")
		t.Setenv("PAGEBOUND_API_BASE_URL", "https://api.internal/")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Address)
		assert.Equal(t, 7, cfg.MaxRetries)
		assert.Equal(t, 90*time.Second, cfg.SignedURLTTL)
		assert.Equal(t, "https://api.internal", cfg.APIBaseURL, "trailing slash is trimmed")
	})

	t.Run("falls back on unparseable values", func(t *testing.T) {
		t.Setenv("PAGEBOUND_CALLBACK_SECRET", "secret")
		t.Setenv("PAGEBOUND_MAX_RETRIES", "many")
		t.Setenv("PAGEBOUND_WORKERS", "-2")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.MaxRetries)
		assert.Equal(t, 2, cfg.Concurrency)
	})
}
