package database

import (
	"fmt"
	"os"
	"path/filepath"

	"contactsync/internal/config"
	"contactsync/internal/contacts"
)

// DBFileName is the name of the store file inside the configured data directory.
const DBFileName = "contacts.db"

// NewStoreFromConfig creates a store based on the database config type.
// Both backends are migrated to the latest schema on open.
func NewStoreFromConfig(cfg config.DatabaseConfig, clock contacts.Clock, logger contacts.Logger) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, DBFileName), clock, logger)
	case "memory":
		return NewSQLiteStore(":memory:", clock, logger)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
