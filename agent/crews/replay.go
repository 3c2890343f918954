package crews

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/agent/persistence"
	"github.com/BaSui01/crewflow/types"
)

// Replayer 从运行记录恢复执行：原样复用原始输入包，
// 恢复点之前的任务输出从原运行载入，不再重新执行。
type Replayer struct {
	runner *Runner
	store  persistence.RunStore
	crews  map[string]*Crew
	logger *zap.Logger
}

// NewReplayer 创建重放控制器，crews 为可重放的流水线定义
func NewReplayer(runner *Runner, logger *zap.Logger, crews ...*Crew) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Replayer{
		runner: runner,
		store:  runner.Store(),
		crews:  make(map[string]*Crew, len(crews)),
		logger: logger.With(zap.String("component", "crew_replayer")),
	}
	for _, c := range crews {
		if c != nil {
			r.crews[c.Name] = c
		}
	}
	return r
}

// Replay 按标识重放。标识先按任务记录 ID 解析（从该任务恢复），
// 再按运行 ID 解析（从第一个未完成的任务恢复；已完成的运行重放最后一个任务）。
func (r *Replayer) Replay(ctx context.Context, identifier string) (*RunResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, types.InvalidArgument("replay identifier is required")
	}

	run, startAt, err := r.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return r.replay(ctx, run, startAt)
}

// ReplayFrom 从指定运行的指定任务恢复
func (r *Replayer) ReplayFrom(ctx context.Context, runID, taskName string) (*RunResult, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, types.InvalidArgument("replay identifier is required")
	}
	if strings.TrimSpace(taskName) == "" {
		return nil, types.InvalidArgument("task name is required")
	}

	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, notFound(err, runID)
	}
	if _, ok := run.Task(taskName); !ok {
		return nil, types.InvalidArgument("run %s has no task %q", runID, taskName)
	}
	return r.replay(ctx, run, taskName)
}

// resolve 把标识解析为原运行与恢复点
func (r *Replayer) resolve(ctx context.Context, identifier string) (*persistence.RunRecord, string, error) {
	run, task, err := r.store.FindTask(ctx, identifier)
	if err == nil {
		return run, task.Name, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return nil, "", err
	}

	run, err = r.store.GetRun(ctx, identifier)
	if err != nil {
		return nil, "", notFound(err, identifier)
	}
	return run, ResumePoint(run), nil
}

// ResumePoint 返回运行中第一个没有输出的任务；全部完成时返回最后一个任务
func ResumePoint(run *persistence.RunRecord) string {
	for i := range run.Tasks {
		if !hasOutput(run, &run.Tasks[i]) {
			return run.Tasks[i].Name
		}
	}
	if len(run.Tasks) == 0 {
		return ""
	}
	return run.Tasks[len(run.Tasks)-1].Name
}

// hasOutput 报告任务在该运行中是否有可用输出：已完成，或作为种子载入
func hasOutput(run *persistence.RunRecord, rec *persistence.TaskRecord) bool {
	switch rec.Status {
	case persistence.TaskStatusCompleted:
		return true
	case persistence.TaskStatusSkipped:
		start, ok := run.Task(run.StartAt)
		return ok && rec.Index < start.Index
	default:
		return false
	}
}

func (r *Replayer) replay(ctx context.Context, run *persistence.RunRecord, startAt string) (*RunResult, error) {
	crew, ok := r.crews[run.Crew]
	if !ok {
		return nil, types.Errorf(types.ErrFailedPrecondition, "crew %q of run %s is not registered", run.Crew, run.ID)
	}
	startIdx := crew.TaskIndex(startAt)
	if startIdx < 0 {
		return nil, types.Errorf(types.ErrFailedPrecondition, "crew %q no longer has task %q", crew.Name, startAt)
	}

	inputs, err := DecodeInputBundle(run.Inputs, run.InputDigest)
	if err != nil {
		return nil, err
	}

	seed := make(map[string]string, startIdx)
	for _, t := range crew.Tasks[:startIdx] {
		rec, ok := run.Task(t.Name)
		if !ok || !hasOutput(run, rec) {
			return nil, types.Errorf(types.ErrFailedPrecondition,
				"run %s has no output for task %q required to resume at %q", run.ID, t.Name, startAt)
		}
		seed[t.Name] = rec.Output
	}

	r.logger.Info("replaying run",
		zap.String("run_id", run.ID),
		zap.String("crew", run.Crew),
		zap.String("start_at", startAt),
		zap.Int("seeded_tasks", len(seed)),
	)

	return r.runner.Run(ctx, crew, inputs, RunOptions{
		StartAt:       startAt,
		Seed:          seed,
		PreviousRunID: run.ID,
	})
}

func notFound(err error, identifier string) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return types.Errorf(types.ErrNotFound, "no run or task with id %q", identifier).WithCause(err)
	}
	return err
}
