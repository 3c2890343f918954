// =============================================================================
// 📦 crewflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("crewflow.yaml").
//	    WithEnvPrefix("CREWFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 兼容环境变量 → 前缀环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 crewflow 的完整配置结构
type Config struct {
	// LLM 远端模型调用配置（限流、重试、超时）
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Crew 流水线定义
	Crew CrewConfig `yaml:"crew" env:"CREW"`

	// Store 运行记录存储
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// Provider 名称: dryrun
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型标识
	Model string `yaml:"model" env:"MODEL"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大尝试次数（含首次）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 重试间隔
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	// 两次出站调用之间的最小间隔
	RateLimitDelay time.Duration `yaml:"rate_limit_delay" env:"RATE_LIMIT_DELAY"`
	// 每分钟请求上限（0 表示不限制）
	RequestsPerMinute int `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
	// 退避倍数（<= 1 为固定间隔）
	BackoffMultiplier float64 `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
	// 退避上限
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" env:"MAX_RETRY_DELAY"`
	// 是否添加抖动
	Jitter bool `yaml:"jitter" env:"JITTER"`
}

// CrewConfig 流水线配置
type CrewConfig struct {
	// 定义文件路径（为空使用内置的工程团队定义）
	DefinitionPath string `yaml:"definition_path" env:"DEFINITION_PATH"`
	// 是否输出详细日志
	Verbose bool `yaml:"verbose" env:"VERBOSE"`
}

// StoreConfig 运行记录存储配置
type StoreConfig struct {
	// 类型: memory, file, redis, sql
	Type string `yaml:"type" env:"TYPE"`
	// 文件存储目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// Database 配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	legacyEnv  bool
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CREWFLOW",
		legacyEnv:  true,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLegacyEnv 是否读取兼容环境变量（ANTHROPIC_* / LITELLM_*）
func (l *Loader) WithLegacyEnv(enabled bool) *Loader {
	l.legacyEnv = enabled
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 兼容环境变量
	if l.legacyEnv {
		if err := applyLegacyEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to load legacy env: %w", err)
		}
	}

	// 4. 从前缀环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 5. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// legacyEnvKeys 兼容旧部署使用的环境变量名
var legacyEnvKeys = []struct {
	key   string
	apply func(cfg *Config, value string) error
}{
	{"ANTHROPIC_MODEL", func(cfg *Config, v string) error { cfg.LLM.Model = v; return nil }},
	{"ANTHROPIC_MAX_TOKENS", func(cfg *Config, v string) error { return setInt(&cfg.LLM.MaxTokens, v) }},
	{"ANTHROPIC_TEMPERATURE", func(cfg *Config, v string) error { return setFloat(&cfg.LLM.Temperature, v) }},
	{"LITELLM_REQUEST_TIMEOUT", func(cfg *Config, v string) error { return setDuration(&cfg.LLM.Timeout, v) }},
	{"LITELLM_MAX_RETRIES", func(cfg *Config, v string) error { return setInt(&cfg.LLM.MaxRetries, v) }},
	{"LITELLM_RETRY_DELAY", func(cfg *Config, v string) error { return setDuration(&cfg.LLM.RetryDelay, v) }},
	{"RATE_LIMIT_DELAY", func(cfg *Config, v string) error { return setDuration(&cfg.LLM.RateLimitDelay, v) }},
}

func applyLegacyEnv(cfg *Config) error {
	for _, e := range legacyEnvKeys {
		value := os.Getenv(e.key)
		if value == "" {
			continue
		}
		if err := e.apply(cfg, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", e.key, err)
		}
	}
	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := parseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// parseDuration 支持 "180s" 形式，也支持纯整数秒
func parseDuration(value string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(value)
}

func setInt(dst *int, value string) error {
	i, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = i
	return nil
}

func setFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, value string) error {
	d, err := parseDuration(value)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证 LLM 配置
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, "llm.max_tokens must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, "llm.timeout must be positive")
	}
	if c.LLM.MaxRetries < 1 {
		errs = append(errs, "llm.max_retries must be at least 1")
	}
	if c.LLM.RetryDelay < 0 {
		errs = append(errs, "llm.retry_delay must not be negative")
	}
	if c.LLM.RateLimitDelay < 0 {
		errs = append(errs, "llm.rate_limit_delay must not be negative")
	}
	if c.LLM.RequestsPerMinute < 0 {
		errs = append(errs, "llm.requests_per_minute must not be negative")
	}

	// 验证存储配置
	switch c.Store.Type {
	case "memory", "file", "redis", "sql":
	default:
		errs = append(errs, fmt.Sprintf("unsupported store type %q", c.Store.Type))
	}

	// 验证日志配置
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unsupported log level %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite", "sqlite3":
		return d.Name
	default:
		return ""
	}
}
