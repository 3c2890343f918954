package persistence

import (
	"context"
	"sync"
)

// MemoryRunStore is an in-memory implementation of RunStore.
// Suitable for development and testing. Data is lost on restart.
type MemoryRunStore struct {
	runs      map[string]*RunRecord
	taskIndex map[string]string // task record ID -> run ID
	mu        sync.RWMutex
	closed    bool
}

// NewMemoryRunStore creates a new in-memory run store
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs:      make(map[string]*RunRecord),
		taskIndex: make(map[string]string),
	}
}

// Close closes the store
func (s *MemoryRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryRunStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveRun persists a run record
func (s *MemoryRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if err := prepareForSave(run); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if old, ok := s.runs[run.ID]; ok {
		for _, t := range old.Tasks {
			delete(s.taskIndex, t.ID)
		}
	}
	s.runs[run.ID] = run.Clone()
	for _, t := range run.Tasks {
		s.taskIndex[t.ID] = run.ID
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *MemoryRunStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

// ListRuns retrieves runs matching the filter criteria
func (s *MemoryRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	result := make([]*RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		if matchesFilter(run, filter) {
			result = append(result, run.Clone())
		}
	}
	return sortAndLimit(result, filter.Limit), nil
}

// FindTask resolves a task record ID to its run
func (s *MemoryRunStore) FindTask(ctx context.Context, taskID string) (*RunRecord, *TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, nil, ErrStoreClosed
	}

	runID, ok := s.taskIndex[taskID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	run := s.runs[runID].Clone()
	task, ok := run.TaskByID(taskID)
	if !ok {
		return nil, nil, ErrNotFound
	}
	return run, task, nil
}

// DeleteRun removes a run
func (s *MemoryRunStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	run, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	for _, t := range run.Tasks {
		delete(s.taskIndex, t.ID)
	}
	delete(s.runs, runID)
	return nil
}
