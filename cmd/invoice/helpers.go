package main

import (
	"context"
	"fmt"

	"github.com/Veraticus/invoice-report/internal/config"
	"github.com/Veraticus/invoice-report/internal/storage"
)

// initStorage opens the run archive and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Archive.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}
