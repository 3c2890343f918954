package crews

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/BaSui01/crewflow/agent/persistence"
	"github.com/BaSui01/crewflow/internal/ctxkeys"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/types"
)

// scriptedExecutor 记录每次调用，按任务名返回预设错误
type scriptedExecutor struct {
	mu       sync.Mutex
	requests []TaskRequest
	failures map[string]error
	hook     func(ctx context.Context, req TaskRequest)
}

func (e *scriptedExecutor) Execute(ctx context.Context, req TaskRequest) (string, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	err := e.failures[req.Task.Name]
	hook := e.hook
	e.mu.Unlock()

	if hook != nil {
		hook(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return "out-" + req.Task.Name, nil
}

func (e *scriptedExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.requests))
	for i, r := range e.requests {
		names[i] = r.Task.Name
	}
	return names
}

func threeTaskCrew(t *testing.T) *Crew {
	t.Helper()
	crew, err := NewCrew("pipeline", []Task{
		{Name: "design", Description: "design {module_name}"},
		{Name: "code", Description: "code it"},
		{Name: "test", Description: "test it"},
	})
	require.NoError(t, err)
	return crew
}

func testInputs() *InputBundle {
	return MustInputBundle(map[string]any{"module_name": "ecommerce.py", "class_name": "Sales"})
}

func TestRunner_RunsTasksInDeclarationOrder(t *testing.T) {
	exec := &scriptedExecutor{}
	runner := NewRunner(exec)
	ctx := context.Background()

	result, err := runner.Run(ctx, threeTaskCrew(t), testInputs(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"design", "code", "test"}, exec.executed())
	assert.Equal(t, persistence.RunStatusCompleted, result.Status)
	assert.Equal(t, "design", result.StartAt)
	assert.Equal(t, "out-test", result.Final)
	assert.Equal(t, []TaskOutput{
		{Task: "design", Output: "out-design"},
		{Task: "code", Output: "out-code"},
		{Task: "test", Output: "out-test"},
	}, result.Outputs)

	// 每个任务都能看到之前全部任务的输出
	assert.Empty(t, exec.requests[0].Context)
	assert.Equal(t, []TaskOutput{{Task: "design", Output: "out-design"}}, exec.requests[1].Context)
	out, ok := exec.requests[2].Output("code")
	assert.True(t, ok)
	assert.Equal(t, "out-code", out)
	for _, req := range exec.requests {
		assert.True(t, req.Inputs.Equal(testInputs()))
	}

	run, err := runner.Store().GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusCompleted, run.Status)
	assert.Equal(t, string(testInputs().Canonical()), string(run.Inputs))
	assert.Equal(t, testInputs().Digest(), run.InputDigest)
	for i, task := range run.Tasks {
		assert.Equal(t, i, task.Index)
		assert.Equal(t, persistence.TaskStatusCompleted, task.Status)
		assert.Equal(t, "out-"+task.Name, task.Output)
		assert.NotNil(t, task.StartedAt)
		assert.NotNil(t, task.CompletedAt)
	}
}

// failingSaveStore 让第 failOn 次 SaveRun 返回 err，其余调用交给内层存储
type failingSaveStore struct {
	persistence.RunStore
	mu     sync.Mutex
	saves  int
	failOn int
	err    error
}

func (s *failingSaveStore) SaveRun(ctx context.Context, run *persistence.RunRecord) error {
	s.mu.Lock()
	s.saves++
	n := s.saves
	s.mu.Unlock()
	if n == s.failOn {
		return s.err
	}
	return s.RunStore.SaveRun(ctx, run)
}

func TestRunner_OutputSaveFailureFailsRun(t *testing.T) {
	diskFull := errors.New("disk full")
	// 第 1 次保存创建运行，第 2 次记录 design 开始，第 3 次记录 design 输出
	store := &failingSaveStore{RunStore: persistence.NewMemoryRunStore(), failOn: 3, err: diskFull}
	exec := &scriptedExecutor{}
	runner := NewRunner(exec, WithStore(store))
	ctx := context.Background()

	result, err := runner.Run(ctx, threeTaskCrew(t), testInputs(), RunOptions{})
	require.Error(t, err)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "design", taskErr.Task)
	assert.Equal(t, 0, taskErr.Index)
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, []string{"design"}, exec.executed())
	require.NotNil(t, result)
	assert.Equal(t, persistence.RunStatusFailed, result.Status)

	run, err := store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusFailed, run.Status)
	assert.Equal(t, "design", run.FailedTask)
	assert.Contains(t, run.Error, "disk full")
	assert.Equal(t, persistence.TaskStatusFailed, run.Tasks[0].Status)
	assert.Empty(t, run.Tasks[0].Output)
	assert.Equal(t, persistence.TaskStatusSkipped, run.Tasks[1].Status)
	assert.Equal(t, persistence.TaskStatusSkipped, run.Tasks[2].Status)
}

func TestRunner_FailFast(t *testing.T) {
	boom := errors.New("upstream exploded")
	exec := &scriptedExecutor{failures: map[string]error{"code": boom}}
	runner := NewRunner(exec)
	ctx := context.Background()

	result, err := runner.Run(ctx, threeTaskCrew(t), testInputs(), RunOptions{})
	require.Error(t, err)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "code", taskErr.Task)
	assert.Equal(t, 1, taskErr.Index)
	assert.Equal(t, result.RunID, taskErr.RunID)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, types.ErrTaskFailureSentinel)
	assert.Equal(t, types.ErrTaskFailure, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), `task "code"`)
	assert.Contains(t, err.Error(), "upstream exploded")

	// 第三个任务从未被调用
	assert.Equal(t, []string{"design", "code"}, exec.executed())
	assert.Equal(t, persistence.RunStatusFailed, result.Status)
	assert.Empty(t, result.Final)
	assert.Equal(t, []TaskOutput{{Task: "design", Output: "out-design"}}, result.Outputs)

	run, err := runner.Store().GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusFailed, run.Status)
	assert.Equal(t, "code", run.FailedTask)
	assert.Contains(t, run.Error, "upstream exploded")
	assert.Equal(t, persistence.TaskStatusCompleted, run.Tasks[0].Status)
	assert.Equal(t, persistence.TaskStatusFailed, run.Tasks[1].Status)
	assert.Equal(t, "upstream exploded", run.Tasks[1].Error)
	assert.Equal(t, persistence.TaskStatusSkipped, run.Tasks[2].Status)
	assert.Nil(t, run.Tasks[2].StartedAt)
}

func TestRunner_StartAtWithSeed(t *testing.T) {
	exec := &scriptedExecutor{}
	runner := NewRunner(exec)
	ctx := context.Background()

	result, err := runner.Run(ctx, threeTaskCrew(t), testInputs(), RunOptions{
		StartAt:       "code",
		Seed:          map[string]string{"design": "seeded design"},
		PreviousRunID: "prev",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"code", "test"}, exec.executed())
	assert.Equal(t, []TaskOutput{{Task: "design", Output: "seeded design"}}, exec.requests[0].Context)
	assert.Equal(t, "code", result.StartAt)
	assert.Len(t, result.Outputs, 3)

	run, err := runner.Store().GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "prev", run.PreviousRunID)
	assert.Equal(t, "code", run.StartAt)
	assert.Equal(t, persistence.TaskStatusSkipped, run.Tasks[0].Status)
	assert.Equal(t, "seeded design", run.Tasks[0].Output)
	assert.Nil(t, run.Tasks[0].StartedAt)
}

func TestRunner_RejectsBeforeExecuting(t *testing.T) {
	ctx := context.Background()
	crew := threeTaskCrew(t)

	tests := []struct {
		name   string
		crew   *Crew
		inputs *InputBundle
		opts   RunOptions
		code   types.ErrorCode
	}{
		{"unknown start task", crew, testInputs(), RunOptions{StartAt: "deploy"}, types.ErrInvalidArgument},
		{"missing seed", crew, testInputs(), RunOptions{StartAt: "test", Seed: map[string]string{"design": "d"}}, types.ErrFailedPrecondition},
		{"nil inputs", crew, nil, RunOptions{}, types.ErrInvalidArgument},
		{"invalid crew", &Crew{Name: "empty"}, testInputs(), RunOptions{}, types.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExecutor{}
			runner := NewRunner(exec)

			_, err := runner.Run(ctx, tt.crew, tt.inputs, tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.code, types.GetErrorCode(err))
			assert.Empty(t, exec.executed())

			runs, err := runner.Store().ListRuns(ctx, persistence.RunFilter{})
			require.NoError(t, err)
			assert.Empty(t, runs)
		})
	}

	t.Run("no executor", func(t *testing.T) {
		_, err := NewRunner(nil).Run(ctx, crew, testInputs(), RunOptions{})
		assert.Equal(t, types.ErrInvalidArgument, types.GetErrorCode(err))
	})
}

func TestRunner_CancelledDuringTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &scriptedExecutor{}
	exec.hook = func(ctx context.Context, req TaskRequest) {
		if req.Task.Name == "code" {
			cancel()
		}
	}
	exec.failures = map[string]error{"code": context.Canceled}
	runner := NewRunner(exec)

	result, err := runner.Run(ctx, threeTaskCrew(t), testInputs(), RunOptions{})
	require.Error(t, err)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "code", taskErr.Task)
	assert.ErrorIs(t, err, types.ErrCancelledSentinel)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"design", "code"}, exec.executed())

	// 失败状态在取消后仍然落盘
	run, err := runner.Store().GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusFailed, run.Status)
	assert.Equal(t, persistence.TaskStatusSkipped, run.Tasks[2].Status)
}

func TestRunner_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &scriptedExecutor{}
	runner := NewRunner(exec)

	result, err := runner.Run(ctx, threeTaskCrew(t), testInputs(), RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCancelledSentinel)
	assert.Empty(t, exec.executed())

	run, err := runner.Store().GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.TaskStatusFailed, run.Tasks[0].Status)
	assert.Equal(t, "design", run.FailedTask)
}

func TestRunner_ContextCarriesRunKeys(t *testing.T) {
	var seen []string
	exec := TaskExecutorFunc(func(ctx context.Context, req TaskRequest) (string, error) {
		runID, _ := ctxkeys.RunID(ctx)
		crew, _ := ctxkeys.Crew(ctx)
		task, _ := ctxkeys.TaskName(ctx)
		seen = append(seen, crew+"/"+task)
		if runID == "" {
			return "", errors.New("run id missing from context")
		}
		return "ok", nil
	})

	_, err := NewRunner(exec).Run(context.Background(), threeTaskCrew(t), testInputs(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"pipeline/design", "pipeline/code", "pipeline/test"}, seen)
}

func TestRunner_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("test", reg, reg, nil)
	exec := &scriptedExecutor{failures: map[string]error{"code": errors.New("boom")}}
	runner := NewRunner(exec, WithMetrics(collector))

	_, err := runner.Run(context.Background(), threeTaskCrew(t), testInputs(), RunOptions{})
	require.Error(t, err)

	expected := `
# HELP test_pipeline_runs_total Total number of pipeline runs by final status
# TYPE test_pipeline_runs_total counter
test_pipeline_runs_total{crew="pipeline",status="failed"} 1
# HELP test_pipeline_tasks_total Total number of pipeline task executions
# TYPE test_pipeline_tasks_total counter
test_pipeline_tasks_total{crew="pipeline",status="completed",task="design"} 1
test_pipeline_tasks_total{crew="pipeline",status="failed",task="code"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"test_pipeline_runs_total", "test_pipeline_tasks_total"))

	count, err := testutil.GatherAndCount(reg, "test_pipeline_task_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunner_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	runner := NewRunner(&scriptedExecutor{}, WithTracer(tp.Tracer("test")))
	result, err := runner.Run(context.Background(), threeTaskCrew(t), testInputs(), RunOptions{})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 4)

	var names []string
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"crew.task", "crew.task", "crew.task", "crew.run"}, names)

	root := spans[3]
	for _, s := range spans[:3] {
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID())
	}
	var runID string
	for _, kv := range root.Attributes() {
		if kv.Key == "crew.run_id" {
			runID = kv.Value.AsString()
		}
	}
	assert.Equal(t, result.RunID, runID)
}
