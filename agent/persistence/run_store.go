package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"
)

// RunStore defines the interface for run record persistence.
// Implementations return copies; mutating a returned record never changes stored state.
type RunStore interface {
	Store

	// SaveRun persists a run record together with its task records (create or replace)
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun retrieves a run by ID
	GetRun(ctx context.Context, runID string) (*RunRecord, error)

	// ListRuns retrieves runs matching the filter, newest first
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)

	// FindTask resolves a task record ID to its owning run and task record
	FindTask(ctx context.Context, taskID string) (*RunRecord, *TaskRecord, error)

	// DeleteRun removes a run and its task records
	DeleteRun(ctx context.Context, runID string) error
}

// RunStatus represents the status of a pipeline run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal returns true if the status is a terminal state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// TaskStatus represents the status of one task within a run
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	// TaskStatusSkipped marks tasks that were never invoked (before the resume point, or after a failure)
	TaskStatusSkipped TaskStatus = "skipped"
)

// IsTerminal returns true if the status is a terminal state
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// RunRecord is the persisted form of one pipeline run
type RunRecord struct {
	// ID is the unique, time-sortable run identifier
	ID string `json:"id"`

	// Crew is the name of the crew that ran
	Crew string `json:"crew"`

	// Inputs is the canonical JSON encoding of the input bundle, stored verbatim
	Inputs json.RawMessage `json:"inputs"`

	// InputDigest is the sha256 hex digest of Inputs
	InputDigest string `json:"input_digest"`

	// Status is the current run status
	Status RunStatus `json:"status"`

	// StartAt is the name of the first task executed in this run
	StartAt string `json:"start_at"`

	// FailedTask names the task that failed the run
	FailedTask string `json:"failed_task,omitempty"`

	// Error is the terminal error message of a failed run
	Error string `json:"error,omitempty"`

	// PreviousRunID links a replay to the run it resumed
	PreviousRunID string `json:"previous_run_id,omitempty"`

	// Tasks holds one record per declared task, in declaration order
	Tasks []TaskRecord `json:"tasks"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskRecord is the persisted state of one task in a run
type TaskRecord struct {
	// ID identifies this task execution; it is accepted by replay
	ID string `json:"id"`

	RunID  string     `json:"run_id"`
	Name   string     `json:"name"`
	Index  int        `json:"index"`
	Status TaskStatus `json:"status"`

	// Output is the task's text output (completed tasks, or seeded from a previous run)
	Output string `json:"output,omitempty"`

	// Error is the failure message (failed tasks)
	Error string `json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunFilter defines criteria for listing runs
type RunFilter struct {
	// Crew filters by crew name
	Crew string

	// Status filters by run status
	Status RunStatus

	// PreviousRunID filters replays of a given run
	PreviousRunID string

	// Limit is the maximum number of runs to return (0 = no limit)
	Limit int
}

// Task returns the task record with the given name
func (r *RunRecord) Task(name string) (*TaskRecord, bool) {
	for i := range r.Tasks {
		if r.Tasks[i].Name == name {
			return &r.Tasks[i], true
		}
	}
	return nil, false
}

// TaskByID returns the task record with the given ID
func (r *RunRecord) TaskByID(id string) (*TaskRecord, bool) {
	for i := range r.Tasks {
		if r.Tasks[i].ID == id {
			return &r.Tasks[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the record
func (r *RunRecord) Clone() *RunRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Inputs != nil {
		c.Inputs = append(json.RawMessage(nil), r.Inputs...)
	}
	c.Tasks = make([]TaskRecord, len(r.Tasks))
	for i, t := range r.Tasks {
		t.StartedAt = cloneTime(t.StartedAt)
		t.CompletedAt = cloneTime(t.CompletedAt)
		c.Tasks[i] = t
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// prepareForSave validates the record and fills identifiers and timestamps
func prepareForSave(run *RunRecord) error {
	if run == nil || run.Crew == "" {
		return ErrInvalidInput
	}
	if run.ID == "" {
		run.ID = NewRunID()
	}
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	for i := range run.Tasks {
		if run.Tasks[i].ID == "" {
			run.Tasks[i].ID = NewTaskRecordID()
		}
		run.Tasks[i].RunID = run.ID
	}
	return nil
}

// matchesFilter checks whether a run matches the filter criteria
func matchesFilter(run *RunRecord, filter RunFilter) bool {
	if filter.Crew != "" && run.Crew != filter.Crew {
		return false
	}
	if filter.Status != "" && run.Status != filter.Status {
		return false
	}
	if filter.PreviousRunID != "" && run.PreviousRunID != filter.PreviousRunID {
		return false
	}
	return true
}

// sortAndLimit orders runs newest first and applies the limit
func sortAndLimit(runs []*RunRecord, limit int) []*RunRecord {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs
}

// encodeRun 紧凑编码且不转义 HTML，Inputs 原始字节原样写出
func encodeRun(run *RunRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(run); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
