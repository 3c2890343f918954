package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRunStore is a Redis-based implementation of RunStore.
// Suitable for distributed deployments.
// Run records are stored as JSON strings with sorted sets for indexing
// and a hash mapping task record IDs to their run.
type RedisRunStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRunStore creates a new Redis-based run store
func NewRedisRunStore(config StoreConfig) (*RedisRunStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRunStoreWithClient(client, config.Redis.KeyPrefix), nil
}

// NewRedisRunStoreWithClient wraps an existing client
func NewRedisRunStoreWithClient(client *redis.Client, keyPrefix string) *RedisRunStore {
	if keyPrefix == "" {
		keyPrefix = "crewflow:"
	}
	return &RedisRunStore{
		client:    client,
		keyPrefix: keyPrefix + "run:",
	}
}

// Close closes the store
func (s *RedisRunStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisRunStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// runKey returns the Redis key for a run
func (s *RedisRunStore) runKey(runID string) string {
	return s.keyPrefix + "data:" + runID
}

// crewKey returns the Redis key for a crew's run index
func (s *RedisRunStore) crewKey(crew string) string {
	return s.keyPrefix + "crew:" + crew
}

// allRunsKey returns the Redis key for all runs index
func (s *RedisRunStore) allRunsKey() string {
	return s.keyPrefix + "all"
}

// taskIndexKey returns the Redis key for the task ID -> run ID hash
func (s *RedisRunStore) taskIndexKey() string {
	return s.keyPrefix + "tasks"
}

// SaveRun persists a run to the store
func (s *RedisRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if err := prepareForSave(run); err != nil {
		return err
	}

	// Get old run for index cleanup
	old, err := s.GetRun(ctx, run.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	data, err := encodeRun(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := s.client.TxPipeline()

	pipe.Set(ctx, s.runKey(run.ID), data, 0)

	score := float64(run.CreatedAt.UnixNano())
	pipe.ZAdd(ctx, s.allRunsKey(), redis.Z{Score: score, Member: run.ID})
	pipe.ZAdd(ctx, s.crewKey(run.Crew), redis.Z{Score: score, Member: run.ID})

	if old != nil {
		if old.Crew != run.Crew {
			pipe.ZRem(ctx, s.crewKey(old.Crew), run.ID)
		}
		stale := make([]string, 0, len(old.Tasks))
		for _, t := range old.Tasks {
			if _, ok := run.TaskByID(t.ID); !ok {
				stale = append(stale, t.ID)
			}
		}
		if len(stale) > 0 {
			pipe.HDel(ctx, s.taskIndexKey(), stale...)
		}
	}

	if len(run.Tasks) > 0 {
		fields := make(map[string]interface{}, len(run.Tasks))
		for _, t := range run.Tasks {
			fields[t.ID] = run.ID
		}
		pipe.HSet(ctx, s.taskIndexKey(), fields)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// GetRun retrieves a run by ID
func (s *RedisRunStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	data, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

// ListRuns retrieves runs matching the filter criteria
func (s *RedisRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	key := s.allRunsKey()
	if filter.Crew != "" {
		key = s.crewKey(filter.Crew)
	}

	runIDs, err := s.client.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*RunRecord, 0, len(runIDs))
	for _, runID := range runIDs {
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			continue
		}
		if matchesFilter(run, filter) {
			result = append(result, run)
		}
	}

	return sortAndLimit(result, filter.Limit), nil
}

// FindTask resolves a task record ID to its run
func (s *RedisRunStore) FindTask(ctx context.Context, taskID string) (*RunRecord, *TaskRecord, error) {
	runID, err := s.client.HGet(ctx, s.taskIndexKey(), taskID).Result()
	if err == redis.Nil {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	task, ok := run.TaskByID(taskID)
	if !ok {
		return nil, nil, ErrNotFound
	}
	return run, task, nil
}

// DeleteRun removes a run and its indexes
func (s *RedisRunStore) DeleteRun(ctx context.Context, runID string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.runKey(runID))
	pipe.ZRem(ctx, s.allRunsKey(), runID)
	pipe.ZRem(ctx, s.crewKey(run.Crew), runID)
	if len(run.Tasks) > 0 {
		ids := make([]string, len(run.Tasks))
		for i, t := range run.Tasks {
			ids[i] = t.ID
		}
		pipe.HDel(ctx, s.taskIndexKey(), ids...)
	}

	_, err = pipe.Exec(ctx)
	return err
}
