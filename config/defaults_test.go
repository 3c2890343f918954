package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, StoreConfig{}, cfg.Store)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
}

// --- Individual Default*Config functions ---

func TestDefaultLLMConfig(t *testing.T) {
	c := DefaultLLMConfig()
	assert.Equal(t, "dryrun", c.Provider)
	assert.Equal(t, "anthropic/claude-3-5-sonnet-20241022", c.Model)
	assert.Equal(t, 4000, c.MaxTokens)
	assert.Equal(t, 0.7, c.Temperature)
	assert.Equal(t, 180*time.Second, c.Timeout)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 5*time.Second, c.RetryDelay)
	assert.Equal(t, 2*time.Second, c.RateLimitDelay)
	assert.Equal(t, 1.0, c.BackoffMultiplier)
}

func TestDefaultStoreConfig(t *testing.T) {
	c := DefaultStoreConfig()
	assert.Equal(t, "file", c.Type)
	assert.Equal(t, "crewflow:", c.Redis.KeyPrefix)
	assert.Equal(t, "sqlite", c.Database.Driver)
}

func TestDefaultConfig_Validates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}
