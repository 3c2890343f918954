package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/llm/gateway"
	"github.com/BaSui01/crewflow/types"
)

// ThrottledProvider 将每次 Completion 交给网关派发（限流 + 重试 + 单次超时）
// 遵循装饰器模式：增强原有 Provider 而不修改其代码
type ThrottledProvider struct {
	provider Provider
	gateway  *gateway.Gateway
	logger   *zap.Logger
}

// NewThrottledProvider 创建经网关调用的 Provider
func NewThrottledProvider(provider Provider, gw *gateway.Gateway, logger *zap.Logger) *ThrottledProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThrottledProvider{
		provider: provider,
		gateway:  gw,
		logger:   logger.With(zap.String("component", "throttled_provider"), zap.String("provider", provider.Name())),
	}
}

// Completion 实现 Provider.Completion
func (tp *ThrottledProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, types.InvalidArgument("chat request has no messages").WithProvider(tp.provider.Name())
	}

	resp, err := gateway.DispatchTyped(tp.gateway, ctx, func(ctx context.Context) (*ChatResponse, error) {
		return tp.provider.Completion(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, types.NewError(types.ErrAttemptFailure, "provider returned no response").WithProvider(tp.provider.Name())
	}

	tp.logger.Debug("completion received",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp, nil
}

// Name 实现 Provider.Name
func (tp *ThrottledProvider) Name() string {
	return tp.provider.Name()
}
