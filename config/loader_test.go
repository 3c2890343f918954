// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearLegacyEnv 屏蔽宿主环境中的兼容变量
func clearLegacyEnv(t *testing.T) {
	t.Helper()
	for _, e := range legacyEnvKeys {
		t.Setenv(e.key, "")
	}
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	clearLegacyEnv(t)

	cfg, err := NewLoader().WithEnvPrefix("CREWFLOW_TEST_DEFAULTS").Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.LLM.RateLimitDelay)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	clearLegacyEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "crewflow.yaml")

	yamlContent := `
llm:
  model: "anthropic/claude-3-haiku"
  max_tokens: 2048
  timeout: 30s
  max_retries: 5
  rate_limit_delay: 500ms

store:
  type: redis
  redis:
    addr: "redis:6379"
    key_prefix: "test:"

log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).WithEnvPrefix("CREWFLOW_TEST_YAML").Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic/claude-3-haiku", cfg.LLM.Model)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 5, cfg.LLM.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.LLM.RateLimitDelay)
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "test:", cfg.Store.Redis.KeyPrefix)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未在文件中出现的字段保持默认值
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 5*time.Second, cfg.LLM.RetryDelay)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("CREWFLOW_LLM_MODEL", "env-model")
	t.Setenv("CREWFLOW_LLM_MAX_RETRIES", "7")
	t.Setenv("CREWFLOW_LLM_TIMEOUT", "45s")
	t.Setenv("CREWFLOW_LLM_JITTER", "true")
	t.Setenv("CREWFLOW_STORE_REDIS_DB", "2")
	t.Setenv("CREWFLOW_LOG_OUTPUT_PATHS", "stdout, /tmp/crewflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.LLM.MaxRetries)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.LLM.Jitter)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, []string{"stdout", "/tmp/crewflow.log"}, cfg.Log.OutputPaths)
}

func TestLoader_DurationAcceptsPlainSeconds(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("CREWFLOW_LLM_RETRY_DELAY", "9")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.LLM.RetryDelay)
}

func TestLoader_LegacyEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("ANTHROPIC_MODEL", "anthropic/legacy")
	t.Setenv("ANTHROPIC_MAX_TOKENS", "1000")
	t.Setenv("ANTHROPIC_TEMPERATURE", "0.2")
	t.Setenv("LITELLM_REQUEST_TIMEOUT", "60")
	t.Setenv("LITELLM_MAX_RETRIES", "4")
	t.Setenv("LITELLM_RETRY_DELAY", "1")
	t.Setenv("RATE_LIMIT_DELAY", "3")

	cfg, err := NewLoader().WithEnvPrefix("CREWFLOW_TEST_LEGACY").Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic/legacy", cfg.LLM.Model)
	assert.Equal(t, 1000, cfg.LLM.MaxTokens)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 4, cfg.LLM.MaxRetries)
	assert.Equal(t, time.Second, cfg.LLM.RetryDelay)
	assert.Equal(t, 3*time.Second, cfg.LLM.RateLimitDelay)
}

func TestLoader_PrefixedEnvOverridesLegacy(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("RATE_LIMIT_DELAY", "3")
	t.Setenv("CREWFLOW_LLM_RATE_LIMIT_DELAY", "250ms")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.RateLimitDelay)
}

func TestLoader_LegacyEnvDisabled(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("LITELLM_MAX_RETRIES", "9")

	cfg, err := NewLoader().WithLegacyEnv(false).WithEnvPrefix("CREWFLOW_TEST_NOLEGACY").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
}

func TestLoader_InvalidLegacyValue(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("LITELLM_MAX_RETRIES", "many")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LITELLM_MAX_RETRIES")
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	clearLegacyEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "crewflow.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  max_retries: 5\n"), 0o644))

	t.Setenv("CREWFLOW_LLM_MAX_RETRIES", "2")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.LLM.MaxRetries)
}

func TestLoader_WithValidator(t *testing.T) {
	clearLegacyEnv(t)

	_, err := NewLoader().
		WithEnvPrefix("CREWFLOW_TEST_VALIDATOR").
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.NoError(t, err)

	t.Setenv("CREWFLOW_TEST_VALIDATOR_LLM_MAX_RETRIES", "0")
	_, err = NewLoader().
		WithEnvPrefix("CREWFLOW_TEST_VALIDATOR").
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_retries")
}

func TestLoader_NonExistentFile(t *testing.T) {
	clearLegacyEnv(t)

	cfg, err := NewLoader().WithConfigPath("/nonexistent/crewflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(c *Config) {}},
		{name: "zero max tokens", modify: func(c *Config) { c.LLM.MaxTokens = 0 }, wantErr: "max_tokens"},
		{name: "temperature out of range", modify: func(c *Config) { c.LLM.Temperature = 3 }, wantErr: "temperature"},
		{name: "zero timeout", modify: func(c *Config) { c.LLM.Timeout = 0 }, wantErr: "timeout"},
		{name: "zero attempts", modify: func(c *Config) { c.LLM.MaxRetries = 0 }, wantErr: "max_retries"},
		{name: "negative rate limit", modify: func(c *Config) { c.LLM.RateLimitDelay = -time.Second }, wantErr: "rate_limit_delay"},
		{name: "zero rate limit allowed", modify: func(c *Config) { c.LLM.RateLimitDelay = 0 }},
		{name: "unknown store", modify: func(c *Config) { c.Store.Type = "etcd" }, wantErr: "store type"},
		{name: "unknown log level", modify: func(c *Config) { c.Log.Level = "trace" }, wantErr: "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "postgres",
			cfg:  DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "crew", SSLMode: "disable"},
			want: "host=db port=5432 user=u password=p dbname=crew sslmode=disable",
		},
		{
			name: "mysql",
			cfg:  DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "crew"},
			want: "u:p@tcp(db:3306)/crew?parseTime=true",
		},
		{
			name: "sqlite",
			cfg:  DatabaseConfig{Driver: "sqlite", Name: "/tmp/crew.db"},
			want: "/tmp/crew.db",
		},
		{
			name: "unknown",
			cfg:  DatabaseConfig{Driver: "oracle"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}

func TestMustLoad_PanicsOnInvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm: [unclosed"), 0o644))

	assert.Panics(t, func() { MustLoad(configPath) })
}
