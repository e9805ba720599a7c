package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial run archive schema",
		Up: func(tx *sql.Tx) error {
			// Money is stored as TEXT so decimals round-trip exactly.
			queries := []string{
				`CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					period TEXT NOT NULL,
					source_file TEXT NOT NULL DEFAULT '',
					line_count INTEGER NOT NULL DEFAULT 0,
					flagged_count INTEGER NOT NULL DEFAULT 0,
					warning_count INTEGER NOT NULL DEFAULT 0,
					grand_total TEXT NOT NULL DEFAULT '0',
					charts_total TEXT NOT NULL DEFAULT '0',
					subset_amount TEXT NOT NULL DEFAULT '0',
					allocation_error TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX idx_runs_period ON runs(period)`,
				`CREATE INDEX idx_runs_created_at ON runs(created_at)`,

				`CREATE TABLE IF NOT EXISTS category_totals (
					run_id TEXT NOT NULL,
					category TEXT NOT NULL,
					total TEXT NOT NULL,
					line_count INTEGER NOT NULL,
					PRIMARY KEY (run_id, category),
					FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS flagged_lines (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL,
					row_num INTEGER NOT NULL,
					invoice_id TEXT NOT NULL,
					source TEXT NOT NULL,
					contract TEXT NOT NULL,
					line_descr TEXT NOT NULL DEFAULT '',
					journal_date DATETIME,
					amount TEXT NOT NULL,
					ap_amount TEXT NOT NULL,
					category TEXT NOT NULL,
					flags TEXT NOT NULL,
					FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS allocations (
					run_id TEXT NOT NULL,
					position INTEGER NOT NULL,
					state TEXT NOT NULL,
					contract TEXT NOT NULL,
					pct TEXT NOT NULL,
					amount TEXT NOT NULL,
					PRIMARY KEY (run_id, position),
					FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add adjusted allocation amount and flagged line lookup index",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE runs ADD COLUMN adjusted_amount TEXT NOT NULL DEFAULT '0'`,
				`CREATE INDEX idx_flagged_lines_run ON flagged_lines(run_id, row_num)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
