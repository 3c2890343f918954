package crews

import (
	"fmt"

	"github.com/BaSui01/crewflow/agent/persistence"
)

// runTransitions 定义运行的合法状态转换
var runTransitions = map[persistence.RunStatus][]persistence.RunStatus{
	persistence.RunStatusPending: {persistence.RunStatusRunning, persistence.RunStatusFailed},
	persistence.RunStatusRunning: {persistence.RunStatusCompleted, persistence.RunStatusFailed},
}

// taskTransitions 定义任务的合法状态转换
var taskTransitions = map[persistence.TaskStatus][]persistence.TaskStatus{
	persistence.TaskStatusPending: {persistence.TaskStatusRunning, persistence.TaskStatusSkipped},
	persistence.TaskStatusRunning: {persistence.TaskStatusCompleted, persistence.TaskStatusFailed},
}

// CanTransitionRun 检查运行状态转换是否合法
func CanTransitionRun(from, to persistence.RunStatus) bool {
	for _, s := range runTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionTask 检查任务状态转换是否合法
func CanTransitionTask(from, to persistence.TaskStatus) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	Subject string
	From    string
	To      string
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s -> %s", e.Subject, e.From, e.To)
}

func transitionRun(run *persistence.RunRecord, to persistence.RunStatus) error {
	if !CanTransitionRun(run.Status, to) {
		return ErrInvalidTransition{Subject: "run", From: string(run.Status), To: string(to)}
	}
	run.Status = to
	return nil
}

func transitionTask(task *persistence.TaskRecord, to persistence.TaskStatus) error {
	if !CanTransitionTask(task.Status, to) {
		return ErrInvalidTransition{Subject: "task " + task.Name, From: string(task.Status), To: string(to)}
	}
	task.Status = to
	return nil
}
