// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bearer

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	autherrors "github.com/stacklok/authguard/pkg/errors"
)

// Validator verifies access tokens.
type Validator struct {
	signer *tokens.JWTSigner
}

// NewValidator creates a Validator checking signatures and the issuer with
// signer.
func NewValidator(signer *tokens.JWTSigner) *Validator {
	return &Validator{signer: signer}
}

// Validate verifies raw and resolves the identity it was minted for. A token
// past its expiry gives ExpiredToken, any other failure InvalidToken.
func (v *Validator) Validate(ctx context.Context, raw string) (*Identity, error) {
	if raw == "" {
		return nil, autherrors.NewInvalidTokenError("no access token supplied")
	}

	var claims tokens.AccessClaims
	if err := v.signer.Parse(ctx, raw, &claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherrors.NewExpiredTokenError("access token has expired", auth.EntityAccount, claims.Subject)
		}
		return nil, autherrors.NewError(autherrors.ErrInvalidToken, "access token is invalid", err)
	}
	if claims.Subject == "" {
		return nil, autherrors.NewInvalidTokenError("access token has no subject")
	}

	return &Identity{
		Subject:     claims.Subject,
		Domain:      claims.Domain,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		Scopes:      claims.Scopes,
		ClientID:    claims.ClientID,
		TokenID:     claims.ID,
		Token:       raw,
	}, nil
}
