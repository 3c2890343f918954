package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Observer 在每次放行时被调用（持有闸门期间），grantedAt 为放行时刻，waited 为本次排队+节流总耗时。
type Observer func(grantedAt time.Time, waited time.Duration)

// Limiter 进程级出站调用闸门
// 保证任意两次放行之间至少间隔 minInterval（跨所有调用方，而不仅是同一调用方）
type Limiter struct {
	minInterval time.Duration

	// gate 是容量为 1 的信号量，持有者独占 last 的读写
	gate chan struct{}

	mu   sync.RWMutex
	last time.Time

	quota     *rate.Limiter
	observers []Observer
	logger    *zap.Logger
}

// Option 配置 Limiter
type Option func(*Limiter)

// WithQuota 在最小间隔之外叠加令牌桶配额（例如供应商的每分钟请求数上限）
func WithQuota(perSecond float64, burst int) Option {
	return func(l *Limiter) {
		if perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		l.quota = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithObserver 注册放行观察者
func WithObserver(o Observer) Option {
	return func(l *Limiter) {
		if o != nil {
			l.observers = append(l.observers, o)
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New 创建闸门。minInterval <= 0 表示不做间隔限制。
func New(minInterval time.Duration, opts ...Option) *Limiter {
	if minInterval < 0 {
		minInterval = 0
	}
	l := &Limiter{
		minInterval: minInterval,
		gate:        make(chan struct{}, 1),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "rate_limiter"))
	return l
}

// MinInterval 返回配置的最小间隔
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}

// Last 返回最近一次完成放行的时刻；从未放行时为零值
func (l *Limiter) Last() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Acquire 阻塞直到距上一次放行至少经过 minInterval，然后记录本次放行时刻。
// ctx 取消时返回 ctx.Err()，且不修改最近放行时刻。
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.gate }()

	if wait := l.pending(time.Now()); wait > 0 {
		l.logger.Debug("rate limiting: waiting", zap.Duration("wait", wait))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if l.quota != nil {
		if err := l.quota.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}

	granted := time.Now()
	l.mu.Lock()
	l.last = granted
	l.mu.Unlock()

	waited := granted.Sub(start)
	for _, o := range l.observers {
		o(granted, waited)
	}
	return nil
}

// pending 计算还需等待的时长，仅由闸门持有者调用
func (l *Limiter) pending(now time.Time) time.Duration {
	if l.minInterval <= 0 {
		return 0
	}
	l.mu.RLock()
	last := l.last
	l.mu.RUnlock()
	if last.IsZero() {
		return 0
	}
	return l.minInterval - now.Sub(last)
}
