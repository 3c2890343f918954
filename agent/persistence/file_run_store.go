package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// FileRunStore 是基于文件的 RunStore 实现，每个运行一个 JSON 文件。
// 适合单节点部署；文件系统通过 afero 抽象，测试使用内存文件系统。
type FileRunStore struct {
	fs        afero.Fs
	baseDir   string
	runs      map[string]*RunRecord // in-memory cache
	taskIndex map[string]string
	mu        sync.RWMutex
	closed    bool
}

// NewFileRunStore 在操作系统文件系统上创建文件运行存储
func NewFileRunStore(config StoreConfig) (*FileRunStore, error) {
	return NewFileRunStoreWithFs(afero.NewOsFs(), config)
}

// NewFileRunStoreWithFs 在给定文件系统上创建文件运行存储
func NewFileRunStoreWithFs(fs afero.Fs, config StoreConfig) (*FileRunStore, error) {
	baseDir := filepath.Join(config.BaseDir, "runs")
	if err := fs.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run store directory: %w", err)
	}

	store := &FileRunStore{
		fs:        fs,
		baseDir:   baseDir,
		runs:      make(map[string]*RunRecord),
		taskIndex: make(map[string]string),
	}

	// 装入已存在的运行记录
	if err := store.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load runs from disk: %w", err)
	}

	return store, nil
}

// 从磁盘加载所有运行记录到内存
func (s *FileRunStore) loadFromDisk() error {
	entries, err := afero.ReadDir(s.fs, s.baseDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := afero.ReadFile(s.fs, filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			return err
		}
		var run RunRecord
		if err := json.Unmarshal(data, &run); err != nil {
			return fmt.Errorf("corrupt run file %s: %w", entry.Name(), err)
		}
		s.runs[run.ID] = &run
		for _, t := range run.Tasks {
			s.taskIndex[t.ID] = run.ID
		}
	}
	return nil
}

func (s *FileRunStore) runPath(runID string) string {
	return filepath.Join(s.baseDir, runID+".json")
}

// writeRun 原子写: 写入临时文件后重命名。
func (s *FileRunStore) writeRun(run *RunRecord) error {
	data, err := encodeRun(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	path := s.runPath(run.ID)
	tempPath := path + ".tmp"

	if err := afero.WriteFile(s.fs, tempPath, data, 0644); err != nil {
		return err
	}
	return s.fs.Rename(tempPath, path)
}

// Close 关闭存储
func (s *FileRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping 检查存储是否健康
func (s *FileRunStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveRun 持久化运行记录
func (s *FileRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if err := prepareForSave(run); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := s.writeRun(run); err != nil {
		return err
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

// GetRun 按 ID 获取运行记录
func (s *FileRunStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
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

// ListRuns 按过滤条件列出运行记录，最新的在前
func (s *FileRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
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

// FindTask 将任务记录 ID 解析为所属运行
func (s *FileRunStore) FindTask(ctx context.Context, taskID string) (*RunRecord, *TaskRecord, error) {
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

// DeleteRun 删除运行记录及其文件
func (s *FileRunStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	run, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}

	if err := s.fs.Remove(s.runPath(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove run file: %w", err)
	}

	for _, t := range run.Tasks {
		delete(s.taskIndex, t.ID)
	}
	delete(s.runs, runID)
	return nil
}
