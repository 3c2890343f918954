package gateway

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/crewflow/internal/ctxkeys"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/llm/ratelimit"
	"github.com/BaSui01/crewflow/llm/retry"
	"github.com/BaSui01/crewflow/types"
)

// Operation 是一次出站调用，ctx 携带单次尝试的超时
type Operation = retry.Operation

// 尝试结果标签
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Gateway 出站调用网关：每次尝试先经过共享限流闸门，再在重试策略下执行
type Gateway struct {
	name    string
	limiter *ratelimit.Limiter
	retryer retry.Retryer
	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
}

// Option 配置 Gateway
type Option func(*Gateway)

// WithName 设置网关名称（用于指标标签与日志）
func WithName(name string) Option {
	return func(g *Gateway) {
		if name != "" {
			g.name = name
		}
	}
}

// WithMetrics 挂载 Prometheus 指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(g *Gateway) { g.metrics = c }
}

// WithTracer 设置 tracer，默认使用全局 provider
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New 创建网关。多个网关共享同一个 limiter 时，它们的出站调用共同遵守最小间隔。
func New(limiter *ratelimit.Limiter, retryer retry.Retryer, opts ...Option) *Gateway {
	g := &Gateway{
		name:   "llm",
		tracer: otel.Tracer("github.com/BaSui01/crewflow/llm/gateway"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if limiter == nil {
		limiter = ratelimit.New(0)
	}
	if retryer == nil {
		retryer = retry.NewRetryer(retry.DefaultPolicy(), g.logger)
	}
	g.limiter = limiter
	g.retryer = retryer
	g.logger = g.logger.With(zap.String("component", "gateway"), zap.String("gateway", g.name))
	return g
}

// Name 返回网关名称
func (g *Gateway) Name() string {
	return g.name
}

// Limiter 返回共享的限流闸门
func (g *Gateway) Limiter() *ratelimit.Limiter {
	return g.limiter
}

// Dispatch 在重试策略下执行 op，每次尝试（包括重试）前都重新获取限流许可
func (g *Gateway) Dispatch(ctx context.Context, op Operation) (any, error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gateway.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("gateway.name", g.name)),
	)
	defer span.End()

	logger := g.logger
	if runID, ok := ctxkeys.RunID(ctx); ok {
		logger = logger.With(zap.String("run_id", runID))
		span.SetAttributes(attribute.String("crew.run_id", runID))
	}
	if task, ok := ctxkeys.TaskName(ctx); ok {
		logger = logger.With(zap.String("task", task))
		span.SetAttributes(attribute.String("crew.task", task))
	}

	acquire := func(ctx context.Context) error {
		t := time.Now()
		if err := g.limiter.Acquire(ctx); err != nil {
			return err
		}
		wait := time.Since(t)
		if g.metrics != nil {
			g.metrics.RecordThrottleWait(g.name, wait)
		}
		span.AddEvent("throttle.granted", trace.WithAttributes(
			attribute.Int64("wait_ms", wait.Milliseconds()),
		))
		return nil
	}

	onAttempt := func(a retry.Attempt) {
		outcome := attemptOutcome(a.Err)
		if g.metrics != nil {
			g.metrics.RecordAttempt(g.name, outcome)
		}
		attrs := []attribute.KeyValue{
			attribute.Int("attempt", a.Index),
			attribute.String("outcome", outcome),
			attribute.Int64("duration_ms", a.Duration.Milliseconds()),
		}
		if a.Err != nil {
			attrs = append(attrs, attribute.String("error", a.Err.Error()))
			logger.Debug("attempt failed", zap.Int("attempt", a.Index), zap.Error(a.Err))
		}
		span.AddEvent("attempt", trace.WithAttributes(attrs...))
	}

	result, err := g.retryer.Execute(ctx, op, retry.WithPreAttempt(acquire), retry.WithAttemptHook(onAttempt))

	status := OutcomeSuccess
	if err != nil {
		status = dispatchStatus(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		logger.Warn("dispatch failed", zap.String("status", status), zap.Error(err))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if g.metrics != nil {
		g.metrics.RecordDispatch(g.name, status, time.Since(start))
	}

	return result, err
}

// DispatchTyped 是 Dispatch 的泛型版本
func DispatchTyped[T any](g *Gateway, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := g.Dispatch(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if result == nil {
		var zero T
		return zero, nil
	}
	v, ok := result.(T)
	if !ok {
		return v, types.Errorf(types.ErrAttemptFailure, "gateway %s: unexpected result type %T", g.name, result)
	}
	return v, nil
}

// DispatchBatch 并发派发一组调用，结果与 ops 顺序一致。
// 所有调用仍经过同一个限流闸门；任一调用失败会取消其余调用。
// concurrency <= 0 表示不限制并发。
func (g *Gateway) DispatchBatch(ctx context.Context, ops []Operation, concurrency int) ([]any, error) {
	results := make([]any, len(ops))
	if len(ops) == 0 {
		return results, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		eg.SetLimit(concurrency)
	}

	for i, op := range ops {
		eg.Go(func() error {
			v, err := g.Dispatch(egCtx, op)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case types.GetErrorCode(err) == types.ErrAttemptTimeout:
		return OutcomeTimeout
	default:
		return OutcomeFailure
	}
}

func dispatchStatus(err error) string {
	var ex *retry.ExhaustedError
	switch {
	case errors.Is(err, types.ErrCancelledSentinel):
		return "cancelled"
	case errors.As(err, &ex) && ex.Permanent:
		return "rejected"
	case ex != nil:
		return "exhausted"
	default:
		return "error"
	}
}
