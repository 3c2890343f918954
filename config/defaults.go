// =============================================================================
// 📦 crewflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LLM:       DefaultLLMConfig(),
		Crew:      DefaultCrewConfig(),
		Store:     DefaultStoreConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:          "dryrun",
		Model:             "anthropic/claude-3-5-sonnet-20241022",
		MaxTokens:         4000,
		Temperature:       0.7,
		Timeout:           180 * time.Second,
		MaxRetries:        3,
		RetryDelay:        5 * time.Second,
		RateLimitDelay:    2 * time.Second,
		RequestsPerMinute: 0,
		BackoffMultiplier: 1,
		MaxRetryDelay:     60 * time.Second,
		Jitter:            false,
	}
}

// DefaultCrewConfig 返回默认流水线配置
func DefaultCrewConfig() CrewConfig {
	return CrewConfig{
		DefinitionPath: "",
		Verbose:        true,
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    "file",
		BaseDir: "./data/runs",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "crewflow:",
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Host:    "localhost",
			Port:    5432,
			User:    "crewflow",
			Name:    "./data/crewflow.db",
			SSLMode: "disable",
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewflow",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "crewflow",
	}
}
