package crews

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/types"
)

// ExecutorConfig 控制 LLMExecutor 发出的请求
type ExecutorConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// LLMExecutor 默认执行器：将任务渲染为提示词后调用 Provider。
// Provider 通常是 ThrottledProvider，从而继承限流与重试。
type LLMExecutor struct {
	provider llm.Provider
	config   ExecutorConfig
	logger   *zap.Logger
}

// NewLLMExecutor 创建 LLM 执行器
func NewLLMExecutor(provider llm.Provider, config ExecutorConfig, logger *zap.Logger) *LLMExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExecutor{
		provider: provider,
		config:   config,
		logger:   logger.With(zap.String("component", "llm_executor")),
	}
}

// Execute 实现 TaskExecutor
func (e *LLMExecutor) Execute(ctx context.Context, req TaskRequest) (string, error) {
	resp, err := e.provider.Completion(ctx, &llm.ChatRequest{
		Model:       e.config.Model,
		Messages:    BuildMessages(req),
		MaxTokens:   e.config.MaxTokens,
		Temperature: e.config.Temperature,
		Metadata:    map[string]string{"task": req.Task.Name},
	})
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", types.NewError(types.ErrUpstreamError, "empty completion").WithProvider(e.provider.Name())
	}
	e.logger.Debug("task completion received",
		zap.String("task", req.Task.Name),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return text, nil
}

// BuildMessages 渲染任务的 system 与 user 消息
func BuildMessages(req TaskRequest) []llm.Message {
	var messages []llm.Message

	if req.Crew != nil && req.Task.Agent != "" {
		if agent, ok := req.Crew.Agent(req.Task.Agent); ok {
			var sb strings.Builder
			sb.WriteString("You are " + Render(agent.Role, req.Inputs) + ".\n")
			if agent.Backstory != "" {
				sb.WriteString(Render(agent.Backstory, req.Inputs) + "\n")
			}
			if agent.Goal != "" {
				sb.WriteString("Your personal goal is: " + Render(agent.Goal, req.Inputs))
			}
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: strings.TrimSpace(sb.String())})
		}
	}

	var sb strings.Builder
	sb.WriteString("Current Task: " + Render(req.Task.Description, req.Inputs))
	if req.Task.ExpectedOutput != "" {
		sb.WriteString("\n\nThis is the expected criteria for your final answer: ")
		sb.WriteString(Render(req.Task.ExpectedOutput, req.Inputs))
	}
	if len(req.Context) > 0 {
		sb.WriteString("\n\nThis is the context you're working with:")
		for _, out := range req.Context {
			sb.WriteString("\n\n## " + out.Task + "\n")
			sb.WriteString(out.Output)
		}
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: sb.String()})
	return messages
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Render 用输入包的值替换 {name} 占位符，未知占位符保持原样
func Render(template string, inputs *InputBundle) string {
	if inputs == nil {
		return strings.TrimSpace(template)
	}
	out := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		if _, ok := inputs.Get(key); !ok {
			return m
		}
		return inputs.String(key)
	})
	return strings.TrimSpace(out)
}
