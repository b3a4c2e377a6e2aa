package store

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/gmsas95/medicamenta/internal/config"
)

// Open builds the configured backend, wrapped in the circuit breaker when enabled.
func Open(cfg config.StorageConfig, logger *zap.Logger) (Backend, error) {
	var backend Backend

	switch cfg.Backend {
	case "", "sqlite":
		path := cfg.SQLitePath
		if cfg.InMemory {
			path = "file::memory:"
		} else {
			if path == "" {
				path = filepath.Join(cfg.DataDir, "medicamenta.db")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		if cfg.InMemory {
			// every pooled connection would otherwise see its own empty database
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
		s, err := NewSQLStore(db, logger)
		if err != nil {
			return nil, err
		}
		backend = s

	case "badger":
		path := cfg.BadgerPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "badger")
		}
		db, err := OpenBadger(path, cfg.InMemory)
		if err != nil {
			return nil, err
		}
		backend = NewBadgerStore(db, logger)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	logger.Info("Medication store opened",
		zap.String("backend", cfg.Backend),
		zap.Bool("in_memory", cfg.InMemory),
		zap.Bool("breaker", cfg.Breaker.Enabled))

	if !cfg.Breaker.Enabled {
		return backend, nil
	}
	return NewBreakerRepository(backend, BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
	}, logger), nil
}
