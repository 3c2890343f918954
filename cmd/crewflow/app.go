package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/agent/persistence"
	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/internal/server"
	"github.com/BaSui01/crewflow/internal/telemetry"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/gateway"
	"github.com/BaSui01/crewflow/llm/ratelimit"
	"github.com/BaSui01/crewflow/llm/retry"
)

// =============================================================================
// 🔌 组件装配
// =============================================================================

// app 持有一次命令执行所需的全部组件
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers
	ops       *server.Manager
	store     persistence.RunStore
	crew      *crews.Crew
	runner    *crews.Runner
	replayer  *crews.Replayer
}

// newApp 按配置装配 存储 → 限流器 → 重试器 → 网关 → Provider → 执行器 → 运行器
func newApp(cfg *config.Config) (*app, error) {
	logger := initLogger(cfg.Log)

	a := &app{cfg: cfg, logger: logger}

	providers, err := telemetry.Init(cfg.Telemetry, logger, telemetry.WithVersion(Version))
	if err != nil {
		// 遥测不可用不影响流水线本身
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		providers = &telemetry.Providers{}
	}
	a.telemetry = providers

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)

		opsCfg := server.DefaultConfig()
		opsCfg.Addr = cfg.Metrics.Addr
		a.ops = server.NewManager(server.NewHandler(collector.Handler(), logger), opsCfg, logger)
		if err := a.ops.Start(); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to start ops server: %w", err)
		}
	}

	store, err := persistence.NewRunStore(storeConfig(cfg.Store), logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	a.store = store

	crew, err := crews.LoadCrew(cfg.Crew.DefinitionPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load crew: %w", err)
	}
	a.crew = crew

	tracer := providers.Tracer()

	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(logger)}
	if cfg.LLM.RequestsPerMinute > 0 {
		limiterOpts = append(limiterOpts, ratelimit.WithQuota(float64(cfg.LLM.RequestsPerMinute)/60, 1))
	}
	limiter := ratelimit.New(cfg.LLM.RateLimitDelay, limiterOpts...)

	retryer := retry.NewRetryer(retryPolicy(cfg.LLM), logger)

	gw := gateway.New(limiter, retryer,
		gateway.WithName(cfg.LLM.Provider),
		gateway.WithMetrics(collector),
		gateway.WithTracer(tracer),
		gateway.WithLogger(logger),
	)

	provider, err := newProvider(cfg.LLM)
	if err != nil {
		a.close()
		return nil, err
	}

	executor := crews.NewLLMExecutor(llm.NewThrottledProvider(provider, gw, logger), crews.ExecutorConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: float32(cfg.LLM.Temperature),
	}, logger)

	a.runner = crews.NewRunner(executor,
		crews.WithStore(store),
		crews.WithMetrics(collector),
		crews.WithTracer(tracer),
		crews.WithLogger(logger),
	)
	a.replayer = crews.NewReplayer(a.runner, logger, crew)

	return a, nil
}

// close 按装配的逆序释放资源
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.ops != nil {
		errs = append(errs, a.ops.Shutdown(ctx))
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown finished with errors", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// newProvider 返回配置的 Provider。
// 厂商协议不在本项目范围内，目前只有本地 dryrun 实现。
func newProvider(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "dryrun":
		return llm.NewDryRunProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (supported: dryrun)", cfg.Provider)
	}
}

// retryPolicy 将 llm 配置映射为重试策略；max_retries 即总尝试次数
func retryPolicy(cfg config.LLMConfig) *retry.Policy {
	return &retry.Policy{
		MaxAttempts: cfg.MaxRetries,
		Timeout:     cfg.Timeout,
		Delay:       cfg.RetryDelay,
		Multiplier:  cfg.BackoffMultiplier,
		MaxDelay:    cfg.MaxRetryDelay,
		Jitter:      cfg.Jitter,
	}
}

// storeConfig 将配置文件中的存储段映射为持久化层配置
func storeConfig(cfg config.StoreConfig) persistence.StoreConfig {
	return persistence.StoreConfig{
		Type:    persistence.StoreType(cfg.Type),
		BaseDir: cfg.BaseDir,
		Redis: persistence.RedisStoreConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		},
		SQL: persistence.SQLStoreConfig{
			Driver: cfg.Database.Driver,
			DSN:    cfg.Database.DSN(),
		},
	}
}

// =============================================================================
// 📝 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
