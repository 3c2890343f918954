package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DryRunProvider 本地确定性 Provider。
// 未接入真实远端服务时由 CLI 使用；测试中可注入失败序列与延迟。
type DryRunProvider struct {
	name    string
	latency time.Duration
	respond func(req *ChatRequest) string

	mu       sync.Mutex
	failures []error
	calls    int
	requests []*ChatRequest
}

// DryRunOption 配置 DryRunProvider
type DryRunOption func(*DryRunProvider)

// WithDryRunLatency 模拟远端延迟（可被 ctx 取消）
func WithDryRunLatency(d time.Duration) DryRunOption {
	return func(p *DryRunProvider) { p.latency = d }
}

// WithDryRunFailures 前 len(errs) 次调用依次返回 errs 中的错误（nil 表示该次成功）
func WithDryRunFailures(errs ...error) DryRunOption {
	return func(p *DryRunProvider) { p.failures = append(p.failures, errs...) }
}

// WithDryRunResponder 自定义响应内容
func WithDryRunResponder(fn func(req *ChatRequest) string) DryRunOption {
	return func(p *DryRunProvider) {
		if fn != nil {
			p.respond = fn
		}
	}
}

// NewDryRunProvider 创建本地 Provider
func NewDryRunProvider(opts ...DryRunOption) *DryRunProvider {
	p := &DryRunProvider{
		name:    "dryrun",
		respond: defaultDryRunResponse,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 实现 Provider.Name
func (p *DryRunProvider) Name() string {
	return p.name
}

// Calls 返回已收到的调用次数
func (p *DryRunProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Requests 返回收到的请求副本
func (p *DryRunProvider) Requests() []*ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*ChatRequest(nil), p.requests...)
}

// Completion 实现 Provider.Completion
func (p *DryRunProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.requests = append(p.requests, req)
	var injected error
	if idx < len(p.failures) {
		injected = p.failures[idx]
	}
	p.mu.Unlock()

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if injected != nil {
		return nil, injected
	}

	content := p.respond(req)
	return &ChatResponse{
		ID:       uuid.NewString(),
		Provider: p.name,
		Model:    req.Model,
		Choices: []ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      Message{Role: RoleAssistant, Content: content},
		}},
		Usage: ChatUsage{
			PromptTokens:     promptLength(req) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (promptLength(req) + len(content)) / 4,
		},
		CreatedAt: time.Now(),
	}, nil
}

// defaultDryRunResponse 根据请求内容生成稳定输出，相同请求得到相同文本
func defaultDryRunResponse(req *ChatRequest) string {
	h := sha256.New()
	for _, m := range req.Messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	sum := hex.EncodeToString(h.Sum(nil))[:12]

	task := req.Metadata["task"]
	if task == "" {
		task = "completion"
	}
	return fmt.Sprintf("[dry-run %s] %s output (prompt %s)", req.Model, task, sum)
}

func promptLength(req *ChatRequest) int {
	n := 0
	for _, m := range req.Messages {
		n += len(m.Content)
	}
	return n
}
