// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import "time"

// Type defines the type of storage backend.
type Type string

const (
	// TypeMemory uses in-memory storage (default).
	TypeMemory Type = "memory"

	// TypeRedis uses Redis for short-lived credentials.
	TypeRedis Type = "redis"

	// TypeSQLite uses an SQLite database file.
	TypeSQLite Type = "sqlite"
)

const (
	// DefaultCleanupInterval is how often the background cleanup runs.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultExpiredRetention is how long a record is kept after its expiry.
	// Verifiers must still see expired records to report them as expired
	// rather than unknown, so backends never drop a record at its expiry instant.
	DefaultExpiredRetention = 1 * time.Hour
)

// Config configures the storage backends.
type Config struct {
	// Principals selects the backend for accounts, credentials, applications and clients.
	Principals Type `mapstructure:"principals" yaml:"principals" validate:"omitempty,oneof=memory sqlite"`

	// Tokens selects the backend for sessions, account tokens and API keys.
	Tokens Type `mapstructure:"tokens" yaml:"tokens" validate:"omitempty,oneof=memory redis sqlite"`

	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis" yaml:"redis"`

	// ExpiredRetention overrides DefaultExpiredRetention.
	ExpiredRetention time.Duration `mapstructure:"expiredRetention" yaml:"expiredRetention"`
}

// SQLiteConfig locates the SQLite database.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Principals:       TypeMemory,
		Tokens:           TypeMemory,
		ExpiredRetention: DefaultExpiredRetention,
	}
}
