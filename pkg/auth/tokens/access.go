// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/storage"
)

// AccessTokenProvider mints JWT access tokens and their opaque refresh tokens.
type AccessTokenProvider struct {
	cfg    Config
	signer *JWTSigner
	store  storage.AccountTokenStore
	now    func() time.Time
}

// NewAccessTokenProvider creates an AccessTokenProvider. Refresh tokens are
// persisted in store.
func NewAccessTokenProvider(cfg Config, signer *JWTSigner, store storage.AccountTokenStore) *AccessTokenProvider {
	return &AccessTokenProvider{cfg: cfg.WithDefaults(), signer: signer, store: store, now: time.Now}
}

// Generate mints an access token and a refresh token for account. When
// restrictions is non-nil it is applied to the access token claims and
// recorded on the refresh token so a refresh re-applies it.
func (p *AccessTokenProvider) Generate(
	ctx context.Context, account *storage.Account, restrictions *auth.TokenRestrictions, opts Options,
) (auth.AuthResponse, error) {
	accessToken, err := p.AccessToken(ctx, account, restrictions, opts)
	if err != nil {
		return auth.AuthResponse{}, err
	}
	refreshToken, err := p.RefreshToken(ctx, account, restrictions, opts)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	return auth.AuthResponse{
		EntityType:   auth.EntityAccount,
		EntityID:     account.ID,
		Type:         auth.TokenTypeAccess,
		Token:        accessToken,
		RefreshToken: refreshToken,
		ValidFor:     int64(p.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// AccessToken mints a signed access token only.
func (p *AccessTokenProvider) AccessToken(
	ctx context.Context, account *storage.Account, restrictions *auth.TokenRestrictions, opts Options,
) (string, error) {
	now := p.now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.cfg.Issuer,
			Subject:   account.ID,
			Audience:  audience(opts.ClientID, p.cfg.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.AccessTokenTTL)),
			ID:        NewTokenID(),
		},
		Domain:      account.Domain,
		Roles:       account.Roles,
		Permissions: account.Permissions,
		Source:      opts.Source,
		ClientID:    opts.ClientID,
	}
	if restrictions != nil {
		claims.Restrictions = restrictions.Clone()
		claims.Scopes = restrictions.Scopes
		if len(restrictions.Permissions) > 0 {
			claims.Permissions = intersect(account.Permissions, restrictions.Permissions)
		}
	}

	token, err := p.signer.Sign(ctx, claims)
	if err != nil {
		return "", fmt.Errorf("failed to mint access token: %w", err)
	}
	return token, nil
}

// RefreshToken persists and returns a new refresh token for account.
func (p *AccessTokenProvider) RefreshToken(
	ctx context.Context, account *storage.Account, restrictions *auth.TokenRestrictions, opts Options,
) (string, error) {
	info := storage.NoAdditionalInformation()
	if restrictions != nil {
		info = storage.RestrictionsInformation(restrictions)
	}

	record, err := issueAccountToken(ctx, p.store, storage.TokenKindRefresh,
		p.now(), p.cfg.RefreshTokenTTL, account, info, opts)
	if err != nil {
		return "", fmt.Errorf("failed to mint refresh token: %w", err)
	}
	return record.Token, nil
}

func audience(clientID, fallback string) jwt.ClaimStrings {
	switch {
	case clientID != "":
		return jwt.ClaimStrings{clientID}
	case fallback != "":
		return jwt.ClaimStrings{fallback}
	default:
		return nil
	}
}

// intersect returns the members of have that are also in allowed, in the order of have.
func intersect(have, allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, p := range have {
		if slices.Contains(allowed, p) {
			out = append(out, p)
		}
	}
	return out
}

// issueAccountToken creates and persists an AccountToken of kind for account.
func issueAccountToken(
	ctx context.Context,
	store storage.AccountTokenStore,
	kind storage.TokenKind,
	now time.Time,
	ttl time.Duration,
	account *storage.Account,
	info storage.AdditionalInformation,
	opts Options,
) (*storage.AccountToken, error) {
	record := &storage.AccountToken{
		ID:                    NewRecordID(),
		Kind:                  kind,
		Token:                 RandomToken(),
		AssociatedAccountID:   account.ID,
		Domain:                account.Domain,
		ClientID:              opts.ClientID,
		Source:                opts.Source,
		TrackingSession:       opts.TrackingSession,
		AdditionalInformation: info,
		CreatedAt:             now,
		ExpiresAt:             now.Add(ttl),
	}
	if err := store.CreateAccountToken(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}
