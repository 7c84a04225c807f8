// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/storage/sqlite"
)

// OpenStorage opens the principal and token backends selected by cfg.
// Backends of the same type are shared between the two halves.
func OpenStorage(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
	principals := cfg.Principals
	if principals == "" {
		principals = storage.TypeMemory
	}
	tokenType := cfg.Tokens
	if tokenType == "" {
		tokenType = storage.TypeMemory
	}
	retention := cfg.ExpiredRetention
	if retention <= 0 {
		retention = storage.DefaultExpiredRetention
	}

	var (
		memory   *storage.MemoryStorage
		sqlStore *sqlite.Store
	)
	memoryStore := func() *storage.MemoryStorage {
		if memory == nil {
			memory = storage.NewMemoryStorage(storage.WithExpiredRetention(retention))
		}
		return memory
	}
	sqliteStore := func() (*sqlite.Store, error) {
		if sqlStore == nil {
			db, err := sqlite.Open(ctx, cfg.SQLite.Path)
			if err != nil {
				return nil, err
			}
			sqlStore = sqlite.NewStore(db, sqlite.WithExpiredRetention(retention))
		}
		return sqlStore, nil
	}
	cleanup := func() {
		if memory != nil {
			_ = memory.Close()
		}
		if sqlStore != nil {
			_ = sqlStore.Close()
		}
	}

	var p storage.PrincipalStorage
	switch principals {
	case storage.TypeMemory:
		p = memoryStore()
	case storage.TypeSQLite:
		s, err := sqliteStore()
		if err != nil {
			return nil, fmt.Errorf("failed to open principal storage: %w", err)
		}
		p = s
	default:
		return nil, fmt.Errorf("unsupported principal storage type %q", principals)
	}

	var t storage.TokenStorage
	switch tokenType {
	case storage.TypeMemory:
		t = memoryStore()
	case storage.TypeSQLite:
		s, err := sqliteStore()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to open token storage: %w", err)
		}
		t = s
	case storage.TypeRedis:
		s, err := storage.NewRedisStorage(ctx, cfg.Redis, retention)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to open token storage: %w", err)
		}
		t = s
	default:
		cleanup()
		return nil, fmt.Errorf("unsupported token storage type %q", tokenType)
	}

	if s, ok := p.(storage.Storage); ok && any(p) == any(t) {
		return s, nil
	}
	return storage.NewComposite(p, t), nil
}

// Migrate applies pending SQLite migrations at path and reports the
// resulting schema version.
func Migrate(ctx context.Context, path string) (applied int, version int64, err error) {
	if path == "" {
		return 0, 0, errors.New("storage.sqlite.path is not set")
	}
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = db.Close() }()

	version, err = sqlite.SchemaVersion(ctx, db)
	if err != nil {
		return 0, 0, err
	}
	return len(db.Applied), version, nil
}
