package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// Policy 定义重试策略配置
// 默认值对应远端模型调用：最多 3 次尝试、单次 180s 超时、固定 5s 间隔
type Policy struct {
	MaxAttempts int           // 最大尝试次数（含首次，至少为 1）
	Timeout     time.Duration // 单次尝试超时（0 表示不限制）
	Delay       time.Duration // 两次尝试之间的基础等待
	Multiplier  float64       // 退避倍数（<= 1 表示固定间隔）
	MaxDelay    time.Duration // 退避上限（0 表示不限制）
	Jitter      bool          // 是否添加 ±25% 随机抖动

	// Classifier 判断错误是否可重试，为空时使用 DefaultClassifier
	Classifier func(err error) bool
	// OnRetry 在每次重试等待前回调
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 返回默认的重试策略
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		Timeout:     180 * time.Second,
		Delay:       5 * time.Second,
		Multiplier:  1,
		MaxDelay:    60 * time.Second,
	}
}

// Operation 是一次远端调用，ctx 已带有单次尝试的超时
type Operation func(ctx context.Context) (any, error)

// Attempt 记录一次尝试（不持久化）
type Attempt struct {
	Index    int
	Start    time.Time
	Duration time.Duration
	Err      error
}

// Retryer 重试器接口
type Retryer interface {
	// Execute 执行 op，失败时按策略重试
	Execute(ctx context.Context, op Operation, opts ...ExecuteOption) (any, error)

	// Do 执行无返回值的函数
	Do(ctx context.Context, fn func(ctx context.Context) error, opts ...ExecuteOption) error

	// Policy 返回生效策略的副本
	Policy() Policy
}

// ExecuteOption 调整单次 Execute 的行为
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	preAttempt func(ctx context.Context) error
	onAttempt  func(Attempt)
}

// WithPreAttempt 在每次尝试开始前、超时窗口之外执行 fn（例如限流等待）
func WithPreAttempt(fn func(ctx context.Context) error) ExecuteOption {
	return func(o *executeOptions) { o.preAttempt = fn }
}

// WithAttemptHook 每次尝试结束后回调
func WithAttemptHook(fn func(Attempt)) ExecuteOption {
	return func(o *executeOptions) { o.onAttempt = fn }
}

// backoffRetryer 基于固定间隔或指数退避的重试器实现
type backoffRetryer struct {
	policy Policy
	logger *zap.Logger
}

// NewRetryer 创建重试器。策略会被复制，之后的修改不影响已创建的重试器。
func NewRetryer(policy *Policy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := *policy
	// 参数校验
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Timeout < 0 {
		p.Timeout = 0
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Classifier == nil {
		p.Classifier = DefaultClassifier
	}

	return &backoffRetryer{
		policy: p,
		logger: logger.With(zap.String("component", "retryer")),
	}
}

// Policy 实现 Retryer.Policy
func (r *backoffRetryer) Policy() Policy {
	return r.policy
}

// Do 实现 Retryer.Do
func (r *backoffRetryer) Do(ctx context.Context, fn func(ctx context.Context) error, opts ...ExecuteOption) error {
	_, err := r.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	}, opts...)
	return err
}

// Execute 实现 Retryer.Execute
// 核心逻辑：单次超时 + 错误分类 + 固定/指数间隔
func (r *backoffRetryer) Execute(ctx context.Context, op Operation, opts ...ExecuteOption) (any, error) {
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	attempt := 0
	for {
		attempt++

		// 第一次执行不延迟
		if attempt > 1 {
			delay := r.calculateDelay(attempt - 1)

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, fmt.Errorf("retry cancelled after %d attempt(s): %w", attempt-1, types.Cancelled(ctx.Err()))
				case <-timer.C:
				}
			}
		}

		if o.preAttempt != nil {
			if err := o.preAttempt(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("retry cancelled before attempt %d: %w", attempt, types.Cancelled(ctx.Err()))
				}
				return nil, fmt.Errorf("before attempt %d: %w", attempt, err)
			}
		}

		start := time.Now()
		result, err := r.runAttempt(ctx, op)
		if o.onAttempt != nil {
			o.onAttempt(Attempt{Index: attempt, Start: start, Duration: time.Since(start), Err: err})
		}

		if err == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		// 上层取消不再重试
		if ctx.Err() != nil {
			return nil, fmt.Errorf("retry cancelled during attempt %d: %w", attempt, types.Cancelled(ctx.Err()))
		}

		if !r.policy.Classifier(err) {
			r.logger.Debug("error is not retryable", zap.Int("attempt", attempt), zap.Error(err))
			return nil, &ExhaustedError{Attempts: attempt, Last: err, Permanent: true}
		}

		if attempt >= r.policy.MaxAttempts {
			break
		}
	}

	r.logger.Warn("retry attempts exhausted",
		zap.Int("attempts", attempt),
		zap.Error(lastErr),
	)
	return nil, &ExhaustedError{Attempts: attempt, Last: lastErr}
}

type attemptOutcome struct {
	value any
	err   error
}

// runAttempt 在单次超时内执行 op；op 忽略 ctx 时超时依然生效，其迟到结果被丢弃
func (r *backoffRetryer) runAttempt(ctx context.Context, op Operation) (any, error) {
	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if r.policy.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan attemptOutcome, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- attemptOutcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, r.timeoutError(out.err)
		}
		return out.value, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, r.timeoutError(attemptCtx.Err())
	}
}

func (r *backoffRetryer) timeoutError(cause error) error {
	return types.Errorf(types.ErrAttemptTimeout, "attempt exceeded %s", r.policy.Timeout).
		WithRetryable(true).
		WithCause(cause)
}

// calculateDelay 计算第 retry 次重试前的等待
func (r *backoffRetryer) calculateDelay(retry int) time.Duration {
	delay := float64(r.policy.Delay)
	if r.policy.Multiplier > 1 {
		delay *= math.Pow(r.policy.Multiplier, float64(retry-1))
	}

	if r.policy.MaxDelay > 0 && delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	// 添加随机抖动（±25%），避免多个调用方同时重试
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	// 不小于基础间隔
	if delay < float64(r.policy.Delay) {
		delay = float64(r.policy.Delay)
	}

	return time.Duration(delay)
}
