// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/storage"
)

// AuthorizationCodeProvider mints OAuth authorization codes.
type AuthorizationCodeProvider struct {
	ttl   time.Duration
	store storage.AccountTokenStore
	now   func() time.Time
}

// NewAuthorizationCodeProvider creates an AuthorizationCodeProvider.
func NewAuthorizationCodeProvider(cfg Config, store storage.AccountTokenStore) *AuthorizationCodeProvider {
	return &AuthorizationCodeProvider{ttl: cfg.WithDefaults().AuthorizationCodeTTL, store: store, now: time.Now}
}

// Generate persists a new code carrying info and returns it.
func (p *AuthorizationCodeProvider) Generate(
	ctx context.Context, account *storage.Account, info storage.AdditionalInformation, opts Options,
) (auth.AuthResponse, error) {
	record, err := issueAccountToken(ctx, p.store, storage.TokenKindAuthorizationCode,
		p.now(), p.ttl, account, info, opts)
	if err != nil {
		return auth.AuthResponse{}, fmt.Errorf("failed to mint authorization code: %w", err)
	}

	return auth.AuthResponse{
		EntityType: auth.EntityAccount,
		EntityID:   account.ID,
		Type:       auth.TokenTypeAuthorizationCode,
		Token:      record.Token,
		ValidFor:   int64(p.ttl.Seconds()),
	}, nil
}

// PasswordlessProvider mints single-use passwordless login tokens.
type PasswordlessProvider struct {
	ttl   time.Duration
	store storage.AccountTokenStore
	now   func() time.Time
}

// NewPasswordlessProvider creates a PasswordlessProvider.
func NewPasswordlessProvider(cfg Config, store storage.AccountTokenStore) *PasswordlessProvider {
	return &PasswordlessProvider{ttl: cfg.WithDefaults().PasswordlessTTL, store: store, now: time.Now}
}

// Generate persists a new passwordless token for account and returns it.
func (p *PasswordlessProvider) Generate(ctx context.Context, account *storage.Account, opts Options) (auth.AuthResponse, error) {
	record, err := issueAccountToken(ctx, p.store, storage.TokenKindPasswordless,
		p.now(), p.ttl, account, storage.NoAdditionalInformation(), opts)
	if err != nil {
		return auth.AuthResponse{}, fmt.Errorf("failed to mint passwordless token: %w", err)
	}

	return auth.AuthResponse{
		EntityType: auth.EntityAccount,
		EntityID:   account.ID,
		Type:       auth.TokenTypePasswordless,
		Token:      record.Token,
		ValidFor:   int64(p.ttl.Seconds()),
	}, nil
}
