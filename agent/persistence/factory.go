package persistence

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/internal/database"
)

// NewRunStore creates a new RunStore based on the configuration
func NewRunStore(config StoreConfig, logger *zap.Logger) (RunStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryRunStore(), nil
	case StoreTypeFile:
		return NewFileRunStore(config)
	case StoreTypeRedis:
		return NewRedisRunStore(config)
	case StoreTypeSQL:
		pool, err := database.Open(config.SQL.Driver, config.SQL.DSN, sqlPoolConfig(config.SQL.Driver), logger)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLRunStore(pool)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported run store type: %s", config.Type)
	}
}

// sqlPoolConfig SQLite 只允许单写连接
func sqlPoolConfig(driver string) database.PoolConfig {
	cfg := database.DefaultPoolConfig()
	if driver == "sqlite" || driver == "sqlite3" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	return cfg
}

// MustNewRunStore creates a new RunStore or panics on error.
//
// WARNING: This function should ONLY be used during application initialization.
// For runtime store creation, use NewRunStore instead.
func MustNewRunStore(config StoreConfig, logger *zap.Logger) RunStore {
	store, err := NewRunStore(config, logger)
	if err != nil {
		panic(fmt.Sprintf("failed to create run store: %v", err))
	}
	return store
}
