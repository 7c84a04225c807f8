// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// MigrationResult describes one applied migration.
type MigrationResult struct {
	Version int64
	Source  string
}

func newMigrationProvider(db *sql.DB) (*goose.Provider, error) {
	// Files live under "migrations/" in the embedded FS; goose wants them flat.
	migrationFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create sub filesystem: %w", err)
	}

	provider, err := goose.NewProvider(database.DialectSQLite3, db, migrationFS)
	if err != nil {
		return nil, fmt.Errorf("failed to create goose provider: %w", err)
	}
	return provider, nil
}

// runMigrations applies all pending schema migrations and reports what ran.
func runMigrations(ctx context.Context, db *sql.DB) ([]MigrationResult, error) {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return nil, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	applied := make([]MigrationResult, 0, len(results))
	for _, r := range results {
		applied = append(applied, MigrationResult{Version: r.Source.Version, Source: r.Source.Path})
	}
	return applied, nil
}

// SchemaVersion returns the highest applied migration version.
func SchemaVersion(ctx context.Context, db *DB) (int64, error) {
	provider, err := newMigrationProvider(db.DB())
	if err != nil {
		return 0, err
	}
	v, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
