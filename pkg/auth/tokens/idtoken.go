// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/storage"
)

// IDTokenProvider mints OpenID Connect ID tokens.
type IDTokenProvider struct {
	cfg    Config
	signer *JWTSigner
	now    func() time.Time
}

// NewIDTokenProvider creates an IDTokenProvider.
func NewIDTokenProvider(cfg Config, signer *JWTSigner) *IDTokenProvider {
	return &IDTokenProvider{cfg: cfg.WithDefaults(), signer: signer, now: time.Now}
}

// Generate mints an ID token for account. The audience is the client id
// from opts, or the configured audience.
func (p *IDTokenProvider) Generate(ctx context.Context, account *storage.Account, opts Options) (string, error) {
	now := p.now()
	claims := IDClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.cfg.Issuer,
			Subject:   account.ID,
			Audience:  audience(opts.ClientID, p.cfg.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.IDTokenTTL)),
		},
		Email: account.Email,
		// Accounts carry no separate display handle; the email doubles as one.
		PreferredUsername: account.Email,
	}

	token, err := p.signer.Sign(ctx, claims)
	if err != nil {
		return "", fmt.Errorf("failed to mint id token: %w", err)
	}
	return token, nil
}

// OIDCProvider packages an access token, an ID token and a refresh token
// into one "oidc" response.
type OIDCProvider struct {
	access *AccessTokenProvider
	id     *IDTokenProvider
}

// NewOIDCProvider creates an OIDCProvider.
func NewOIDCProvider(access *AccessTokenProvider, id *IDTokenProvider) *OIDCProvider {
	return &OIDCProvider{access: access, id: id}
}

// Generate mints the OIDC token triple for account.
func (p *OIDCProvider) Generate(
	ctx context.Context, account *storage.Account, restrictions *auth.TokenRestrictions, opts Options,
) (auth.AuthResponse, error) {
	access, err := p.access.Generate(ctx, account, restrictions, opts)
	if err != nil {
		return auth.AuthResponse{}, err
	}
	idToken, err := p.id.Generate(ctx, account, opts)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	return auth.AuthResponse{
		EntityType: auth.EntityAccount,
		EntityID:   account.ID,
		Type:       auth.TokenTypeOIDC,
		OIDC: &auth.OAuthTokens{
			AccessToken:  access.Token,
			IDToken:      idToken,
			RefreshToken: access.RefreshToken,
		},
		RefreshToken: access.RefreshToken,
		ValidFor:     access.ValidFor,
	}, nil
}
