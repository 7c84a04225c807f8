// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/keys"
)

// AccessClaims is the claim set of an access token.
type AccessClaims struct {
	jwt.RegisteredClaims

	Domain       string                  `json:"domain,omitempty"`
	Roles        []string                `json:"roles,omitempty"`
	Permissions  []string                `json:"permissions,omitempty"`
	Scopes       []string                `json:"scopes,omitempty"`
	Restrictions *auth.TokenRestrictions `json:"restrictions,omitempty"`
	Source       string                  `json:"src,omitempty"`
	ClientID     string                  `json:"cid,omitempty"`
}

// IDClaims is the claim set of an OpenID Connect ID token.
type IDClaims struct {
	jwt.RegisteredClaims

	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// JWTSigner signs claim sets with the current key of a KeyProvider and
// verifies tokens against every published key.
type JWTSigner struct {
	keys   keys.KeyProvider
	issuer string
}

// NewJWTSigner creates a signer for tokens issued by issuer.
func NewJWTSigner(provider keys.KeyProvider, issuer string) *JWTSigner {
	return &JWTSigner{keys: provider, issuer: issuer}
}

// Sign serialises claims as a compact JWS with a "kid" header.
func (s *JWTSigner) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	key, err := s.keys.SigningKey(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get signing key: %w", err)
	}

	method := jwt.GetSigningMethod(key.Algorithm)
	if method == nil {
		return "", fmt.Errorf("unsupported signing algorithm %q", key.Algorithm)
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.KeyID

	signed, err := token.SignedString(key.Key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and decodes it into claims. The signature must match a
// published key selected by "kid", and the issuer must match.
func (s *JWTSigner) Parse(ctx context.Context, raw string, claims jwt.Claims) error {
	pubKeys, err := s.keys.PublicKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list public keys: %w", err)
	}

	algs := make([]string, 0, len(pubKeys))
	for _, k := range pubKeys {
		algs = append(algs, k.Algorithm)
	}

	_, err = jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		for _, k := range pubKeys {
			if k.KeyID == kid {
				return k.PublicKey, nil
			}
		}
		return nil, errors.New("unknown key id")
	}, jwt.WithValidMethods(algs), jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	return nil
}
