// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stacklok/authguard/pkg/auth/storage"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and the rules spanning several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed on the '%s' rule", ErrInvalidConfig, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	ttls := map[string]time.Duration{
		"tokens.accessTokenTTL":       c.Tokens.AccessTokenTTL,
		"tokens.idTokenTTL":           c.Tokens.IDTokenTTL,
		"tokens.refreshTokenTTL":      c.Tokens.RefreshTokenTTL,
		"tokens.authorizationCodeTTL": c.Tokens.AuthorizationCodeTTL,
		"tokens.passwordlessTTL":      c.Tokens.PasswordlessTTL,
		"tokens.sessionTTL":           c.Tokens.SessionTTL,
		"tokens.trackingSessionTTL":   c.Tokens.TrackingSessionTTL,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, name, ttl)
		}
	}

	if c.Storage.Tokens == storage.TypeRedis && c.Storage.Redis.Addr == "" && len(c.Storage.Redis.SentinelAddrs) == 0 {
		return fmt.Errorf("%w: storage.redis.addr is required when storage.tokens is redis", ErrInvalidConfig)
	}
	if (c.Storage.Principals == storage.TypeSQLite || c.Storage.Tokens == storage.TypeSQLite) && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("%w: storage.sqlite.path is required when a sqlite backend is selected", ErrInvalidConfig)
	}
	if c.Events.Type == EventsRedis && c.Storage.Redis.Addr == "" && len(c.Storage.Redis.SentinelAddrs) == 0 {
		return fmt.Errorf("%w: redis events need storage.redis.addr", ErrInvalidConfig)
	}
	if c.Keys.KeyDir != "" && c.Keys.SigningKeyFile == "" {
		return fmt.Errorf("%w: keys.signingKeyFile is required when keys.keyDir is set", ErrInvalidConfig)
	}
	return nil
}
