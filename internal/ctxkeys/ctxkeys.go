package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	runIDKey    contextKey = "run_id"
	crewKey     contextKey = "crew"
	taskNameKey contextKey = "task_name"
)

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithCrew 设置当前流水线名称
func WithCrew(ctx context.Context, crew string) context.Context {
	return context.WithValue(ctx, crewKey, crew)
}

// Crew 获取当前流水线名称
func Crew(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(crewKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTaskName 设置当前任务名称
func WithTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskNameKey, name)
}

// TaskName 获取当前任务名称
func TaskName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(taskNameKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
