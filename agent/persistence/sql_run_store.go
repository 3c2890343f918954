package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/crewflow/internal/database"
)

// =============================================================================
// 🗄️ SQL 运行记录存储（GORM）
// =============================================================================

// runRow 运行记录表模型
type runRow struct {
	ID            string    `gorm:"primaryKey;size:64"`
	Crew          string    `gorm:"size:128;index"`
	Inputs        string    `gorm:"type:text"`
	InputDigest   string    `gorm:"size:64"`
	Status        string    `gorm:"size:16;index"`
	StartAt       string    `gorm:"size:128"`
	FailedTask    string    `gorm:"size:128"`
	ErrorMessage  string    `gorm:"type:text"`
	PreviousRunID string    `gorm:"size:64;index"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false;index"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

// TableName 指定表名
func (runRow) TableName() string { return "crewflow_runs" }

// taskRow 任务记录表模型
type taskRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	RunID        string `gorm:"size:64;index"`
	Name         string `gorm:"size:128"`
	Position     int
	Status       string `gorm:"size:16"`
	Output       string `gorm:"type:text"`
	ErrorMessage string `gorm:"type:text"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// TableName 指定表名
func (taskRow) TableName() string { return "crewflow_run_tasks" }

// SQLRunStore 是基于 GORM 的 RunStore 实现，支持 postgres、mysql 与 sqlite
type SQLRunStore struct {
	pool        *database.PoolManager
	maxAttempts int
}

// NewSQLRunStore 基于连接池创建 SQL 运行存储，并自动迁移表结构
func NewSQLRunStore(pool *database.PoolManager) (*SQLRunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if err := pool.DB().AutoMigrate(&runRow{}, &taskRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate run tables: %w", err)
	}
	return &SQLRunStore{pool: pool, maxAttempts: 3}, nil
}

// Close 关闭底层连接池
func (s *SQLRunStore) Close() error {
	return s.pool.Close()
}

// Ping 检查数据库连接
func (s *SQLRunStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveRun 在事务中写入运行记录并替换其任务记录
func (s *SQLRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if err := prepareForSave(run); err != nil {
		return err
	}

	row, tasks := toRows(run)
	return s.pool.WithTransactionRetry(ctx, s.maxAttempts, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", row.ID).Delete(&taskRow{}).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		return tx.Create(&tasks).Error
	})
}

// GetRun 按 ID 获取运行记录
func (s *SQLRunStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	db := s.pool.DB().WithContext(ctx)

	var row runRow
	if err := db.First(&row, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var tasks []taskRow
	if err := db.Where("run_id = ?", runID).Order("position").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return fromRows(row, tasks), nil
}

// ListRuns 按过滤条件列出运行记录，最新的在前
func (s *SQLRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	db := s.pool.DB().WithContext(ctx)

	query := db.Model(&runRow{})
	if filter.Crew != "" {
		query = query.Where("crew = ?", filter.Crew)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.PreviousRunID != "" {
		query = query.Where("previous_run_id = ?", filter.PreviousRunID)
	}
	query = query.Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []runRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []*RunRecord{}, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	var tasks []taskRow
	if err := db.Where("run_id IN ?", ids).Order("position").Find(&tasks).Error; err != nil {
		return nil, err
	}
	byRun := make(map[string][]taskRow, len(rows))
	for _, t := range tasks {
		byRun[t.RunID] = append(byRun[t.RunID], t)
	}

	result := make([]*RunRecord, len(rows))
	for i, r := range rows {
		result[i] = fromRows(r, byRun[r.ID])
	}
	return result, nil
}

// FindTask 将任务记录 ID 解析为所属运行
func (s *SQLRunStore) FindTask(ctx context.Context, taskID string) (*RunRecord, *TaskRecord, error) {
	var row taskRow
	if err := s.pool.DB().WithContext(ctx).First(&row, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	run, err := s.GetRun(ctx, row.RunID)
	if err != nil {
		return nil, nil, err
	}
	task, ok := run.TaskByID(taskID)
	if !ok {
		return nil, nil, ErrNotFound
	}
	return run, task, nil
}

// DeleteRun 删除运行记录及其任务记录
func (s *SQLRunStore) DeleteRun(ctx context.Context, runID string) error {
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&runRow{}, "id = ?", runID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("run_id = ?", runID).Delete(&taskRow{}).Error
	})
}

func toRows(run *RunRecord) (runRow, []taskRow) {
	row := runRow{
		ID:            run.ID,
		Crew:          run.Crew,
		Inputs:        string(run.Inputs),
		InputDigest:   run.InputDigest,
		Status:        string(run.Status),
		StartAt:       run.StartAt,
		FailedTask:    run.FailedTask,
		ErrorMessage:  run.Error,
		PreviousRunID: run.PreviousRunID,
		CreatedAt:     run.CreatedAt,
		UpdatedAt:     run.UpdatedAt,
	}
	tasks := make([]taskRow, len(run.Tasks))
	for i, t := range run.Tasks {
		tasks[i] = taskRow{
			ID:           t.ID,
			RunID:        run.ID,
			Name:         t.Name,
			Position:     t.Index,
			Status:       string(t.Status),
			Output:       t.Output,
			ErrorMessage: t.Error,
			StartedAt:    t.StartedAt,
			CompletedAt:  t.CompletedAt,
		}
	}
	return row, tasks
}

func fromRows(row runRow, tasks []taskRow) *RunRecord {
	run := &RunRecord{
		ID:            row.ID,
		Crew:          row.Crew,
		InputDigest:   row.InputDigest,
		Status:        RunStatus(row.Status),
		StartAt:       row.StartAt,
		FailedTask:    row.FailedTask,
		Error:         row.ErrorMessage,
		PreviousRunID: row.PreviousRunID,
		Tasks:         make([]TaskRecord, len(tasks)),
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.Inputs != "" {
		run.Inputs = json.RawMessage(row.Inputs)
	}
	for i, t := range tasks {
		run.Tasks[i] = TaskRecord{
			ID:          t.ID,
			RunID:       t.RunID,
			Name:        t.Name,
			Index:       t.Position,
			Status:      TaskStatus(t.Status),
			Output:      t.Output,
			Error:       t.ErrorMessage,
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
		}
	}
	return run
}
