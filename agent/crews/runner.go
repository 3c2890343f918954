package crews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/agent/persistence"
	"github.com/BaSui01/crewflow/internal/ctxkeys"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/types"
)

// =============================================================================
// 🧩 任务执行协作者
// =============================================================================

// TaskOutput 是一个已完成任务的输出
type TaskOutput struct {
	Task   string `json:"task"`
	Output string `json:"output"`
}

// TaskRequest 是交给执行器的单个任务
type TaskRequest struct {
	Crew   *Crew
	Task   Task
	Index  int
	Inputs *InputBundle
	// Context 按声明顺序包含之前所有任务的输出
	Context []TaskOutput
}

// Output 返回前序任务的输出
func (r TaskRequest) Output(task string) (string, bool) {
	for _, o := range r.Context {
		if o.Task == task {
			return o.Output, true
		}
	}
	return "", false
}

// TaskExecutor 把任务与输入转换为文本输出
type TaskExecutor interface {
	Execute(ctx context.Context, req TaskRequest) (string, error)
}

// TaskExecutorFunc 函数适配器
type TaskExecutorFunc func(ctx context.Context, req TaskRequest) (string, error)

// Execute 实现 TaskExecutor
func (f TaskExecutorFunc) Execute(ctx context.Context, req TaskRequest) (string, error) {
	return f(ctx, req)
}

// TaskError 表示某个任务失败导致运行终止
type TaskError struct {
	RunID string
	Task  string
	Index int
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q (#%d) failed: %v", e.Task, e.Index, e.Err)
}

// Unwrap 同时匹配 TASK_FAILURE 与底层错误
func (e *TaskError) Unwrap() []error {
	return []error{types.ErrTaskFailureSentinel, e.Err}
}

// =============================================================================
// 🏃 流水线运行器
// =============================================================================

// RunOptions 控制一次运行
type RunOptions struct {
	// StartAt 是首个执行的任务名，为空表示第一个任务
	StartAt string

	// Seed 提供 StartAt 之前各任务的输出（重放时由原运行记录载入）
	Seed map[string]string

	// PreviousRunID 记录被重放的运行
	PreviousRunID string
}

// RunResult 是一次运行的结果
type RunResult struct {
	RunID   string                `json:"run_id"`
	Crew    string                `json:"crew"`
	Status  persistence.RunStatus `json:"status"`
	StartAt string                `json:"start_at"`
	// Outputs 按声明顺序包含工作上下文中的全部输出（含种子输出）
	Outputs []TaskOutput `json:"outputs"`
	// Final 是最后一个任务的输出
	Final string `json:"final,omitempty"`
}

// Runner 按声明顺序执行任务，失败即停止
type Runner struct {
	executor TaskExecutor
	store    persistence.RunStore
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
}

// RunnerOption 配置 Runner
type RunnerOption func(*Runner)

// WithStore 设置运行记录存储，默认内存存储
func WithStore(store persistence.RunStore) RunnerOption {
	return func(r *Runner) {
		if store != nil {
			r.store = store
		}
	}
}

// WithMetrics 挂载指标收集器
func WithMetrics(c *metrics.Collector) RunnerOption {
	return func(r *Runner) { r.metrics = c }
}

// WithTracer 设置 tracer
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner 创建运行器
func NewRunner(executor TaskExecutor, opts ...RunnerOption) *Runner {
	r := &Runner{
		executor: executor,
		tracer:   otel.Tracer("github.com/BaSui01/crewflow/agent/crews"),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = persistence.NewMemoryRunStore()
	}
	r.logger = r.logger.With(zap.String("component", "crew_runner"))
	return r
}

// Store 返回运行记录存储
func (r *Runner) Store() persistence.RunStore {
	return r.store
}

// Run 从 opts.StartAt 起按顺序执行 crew 的任务。
// 任务失败时返回 *TaskError，其余任务不再调用并记为 skipped。
func (r *Runner) Run(ctx context.Context, crew *Crew, inputs *InputBundle, opts RunOptions) (*RunResult, error) {
	if r.executor == nil {
		return nil, types.InvalidArgument("runner has no task executor")
	}
	if err := crew.Validate(); err != nil {
		return nil, err
	}
	if inputs == nil {
		return nil, types.InvalidArgument("input bundle is required")
	}

	startIdx := 0
	if opts.StartAt != "" {
		startIdx = crew.TaskIndex(opts.StartAt)
		if startIdx < 0 {
			return nil, types.InvalidArgument("crew %q has no task %q", crew.Name, opts.StartAt)
		}
	}

	// 恢复点之前的任务必须已有输出
	working := make([]TaskOutput, 0, len(crew.Tasks))
	for _, t := range crew.Tasks[:startIdx] {
		out, ok := opts.Seed[t.Name]
		if !ok {
			return nil, types.Errorf(types.ErrFailedPrecondition,
				"missing output of task %q required to start at %q", t.Name, crew.Tasks[startIdx].Name)
		}
		working = append(working, TaskOutput{Task: t.Name, Output: out})
	}

	run := r.newRecord(crew, inputs, startIdx, opts)

	ctx, span := r.tracer.Start(ctx, "crew.run", trace.WithAttributes(
		attribute.String("crew.name", crew.Name),
		attribute.String("crew.run_id", run.ID),
		attribute.String("crew.start_at", run.StartAt),
	))
	defer span.End()
	ctx = ctxkeys.WithCrew(ctxkeys.WithRunID(ctx, run.ID), crew.Name)

	logger := r.logger.With(zap.String("crew", crew.Name), zap.String("run_id", run.ID))
	if opts.PreviousRunID != "" {
		logger = logger.With(zap.String("previous_run_id", opts.PreviousRunID))
	}

	if err := transitionRun(run, persistence.RunStatusRunning); err != nil {
		return nil, err
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	logger.Info("run started", zap.String("start_at", run.StartAt), zap.Int("tasks", len(crew.Tasks)))

	for i := startIdx; i < len(crew.Tasks); i++ {
		task := crew.Tasks[i]
		output, taskErr := r.runTask(ctx, crew, run, i, inputs, working, logger)
		if taskErr != nil {
			return r.fail(ctx, span, run, i, taskErr, working, logger)
		}
		working = append(working, TaskOutput{Task: task.Name, Output: output})
	}

	if err := transitionRun(run, persistence.RunStatusCompleted); err != nil {
		return nil, err
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordRun(crew.Name, string(run.Status))
	}
	span.SetStatus(codes.Ok, "")
	logger.Info("run completed")

	return r.result(run, working), nil
}

// newRecord 创建运行记录：恢复点之前的任务记为 skipped 并携带种子输出
func (r *Runner) newRecord(crew *Crew, inputs *InputBundle, startIdx int, opts RunOptions) *persistence.RunRecord {
	now := r.now()
	run := &persistence.RunRecord{
		ID:            persistence.NewRunID(),
		Crew:          crew.Name,
		Inputs:        inputs.Canonical(),
		InputDigest:   inputs.Digest(),
		Status:        persistence.RunStatusPending,
		StartAt:       crew.Tasks[startIdx].Name,
		PreviousRunID: opts.PreviousRunID,
		Tasks:         make([]persistence.TaskRecord, len(crew.Tasks)),
		CreatedAt:     now,
	}
	for i, t := range crew.Tasks {
		rec := persistence.TaskRecord{
			ID:     persistence.NewTaskRecordID(),
			RunID:  run.ID,
			Name:   t.Name,
			Index:  i,
			Status: persistence.TaskStatusPending,
		}
		if i < startIdx {
			rec.Status = persistence.TaskStatusSkipped
			rec.Output = opts.Seed[t.Name]
		}
		run.Tasks[i] = rec
	}
	return run
}

// runTask 执行单个任务并记录其状态
func (r *Runner) runTask(ctx context.Context, crew *Crew, run *persistence.RunRecord, idx int,
	inputs *InputBundle, working []TaskOutput, logger *zap.Logger) (string, error) {

	task := crew.Tasks[idx]
	rec := &run.Tasks[idx]

	if err := ctx.Err(); err != nil {
		return "", types.Cancelled(err)
	}

	started := r.now()
	rec.StartedAt = &started
	if err := transitionTask(rec, persistence.TaskStatusRunning); err != nil {
		return "", err
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to record task start: %w", err)
	}

	taskCtx, span := r.tracer.Start(ctx, "crew.task", trace.WithAttributes(
		attribute.String("crew.task", task.Name),
		attribute.Int("crew.task_index", idx),
		attribute.String("crew.task_record_id", rec.ID),
	))
	defer span.End()
	taskCtx = ctxkeys.WithTaskName(taskCtx, task.Name)

	logger.Info("task started", zap.String("task", task.Name), zap.Int("index", idx))

	output, err := r.executor.Execute(taskCtx, TaskRequest{
		Crew:    crew,
		Task:    task,
		Index:   idx,
		Inputs:  inputs,
		Context: append([]TaskOutput(nil), working...),
	})
	if err != nil && ctx.Err() != nil && !errors.Is(err, types.ErrCancelledSentinel) {
		err = types.Cancelled(err)
	}

	completed := r.now()
	rec.CompletedAt = &completed
	duration := completed.Sub(started)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "task failed")
		if r.metrics != nil {
			r.metrics.RecordTask(crew.Name, task.Name, string(persistence.TaskStatusFailed), duration)
		}
		return "", err
	}

	rec.Output = output
	if terr := transitionTask(rec, persistence.TaskStatusCompleted); terr != nil {
		return "", terr
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		// 完成状态未落盘，回退到 running 由 fail 记为失败
		rec.Status = persistence.TaskStatusRunning
		rec.Output = ""
		err = fmt.Errorf("failed to record task output: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "task output not recorded")
		if r.metrics != nil {
			r.metrics.RecordTask(crew.Name, task.Name, string(persistence.TaskStatusFailed), duration)
		}
		return "", err
	}

	span.SetStatus(codes.Ok, "")
	if r.metrics != nil {
		r.metrics.RecordTask(crew.Name, task.Name, string(persistence.TaskStatusCompleted), duration)
	}
	logger.Info("task completed", zap.String("task", task.Name), zap.Duration("duration", duration))
	return output, nil
}

// fail 将运行标记为失败：当前任务 failed，其余任务 skipped
func (r *Runner) fail(ctx context.Context, span trace.Span, run *persistence.RunRecord, idx int,
	cause error, working []TaskOutput, logger *zap.Logger) (*RunResult, error) {

	rec := &run.Tasks[idx]
	taskErr := &TaskError{RunID: run.ID, Task: rec.Name, Index: idx, Err: cause}

	switch rec.Status {
	case persistence.TaskStatusPending:
		// 任务开始前即被取消
		now := r.now()
		rec.StartedAt, rec.CompletedAt = &now, &now
		if err := transitionTask(rec, persistence.TaskStatusRunning); err != nil {
			return nil, err
		}
	case persistence.TaskStatusRunning:
	default:
		return nil, ErrInvalidTransition{Subject: "task " + rec.Name, From: string(rec.Status), To: string(persistence.TaskStatusFailed)}
	}
	rec.Error = cause.Error()
	if err := transitionTask(rec, persistence.TaskStatusFailed); err != nil {
		return nil, err
	}
	for i := idx + 1; i < len(run.Tasks); i++ {
		if err := transitionTask(&run.Tasks[i], persistence.TaskStatusSkipped); err != nil {
			return nil, err
		}
	}

	run.FailedTask = rec.Name
	run.Error = cause.Error()
	if err := transitionRun(run, persistence.RunStatusFailed); err != nil {
		return nil, err
	}

	// 取消后仍需落盘失败状态
	saveCtx := context.WithoutCancel(ctx)
	if err := r.store.SaveRun(saveCtx, run); err != nil {
		logger.Error("failed to record run failure", zap.Error(err))
	}
	if r.metrics != nil {
		r.metrics.RecordRun(run.Crew, string(run.Status))
	}

	span.RecordError(taskErr)
	span.SetStatus(codes.Error, "task "+rec.Name+" failed")
	logger.Error("run failed", zap.String("task", rec.Name), zap.Int("index", idx), zap.Error(cause))

	return r.result(run, working), taskErr
}

func (r *Runner) result(run *persistence.RunRecord, working []TaskOutput) *RunResult {
	res := &RunResult{
		RunID:   run.ID,
		Crew:    run.Crew,
		Status:  run.Status,
		StartAt: run.StartAt,
		Outputs: append([]TaskOutput(nil), working...),
	}
	if run.Status == persistence.RunStatusCompleted && len(working) > 0 {
		res.Final = working[len(working)-1].Output
	}
	return res
}
