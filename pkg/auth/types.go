// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"maps"
	"slices"
)

// Token type names used to declare and route exchanges.
const (
	TokenTypeBasic             = "basic"
	TokenTypeSession           = "sessionToken"
	TokenTypeAuthorizationCode = "authorizationCode"
	TokenTypeRefresh           = "refresh"
	TokenTypeAccess            = "accessToken"
	TokenTypeID                = "idToken"
	TokenTypeOIDC              = "oidc"
	TokenTypePasswordless      = "passwordless"
	TokenTypeApp               = "app"
	TokenTypeAPIKey            = "apiKey"
)

// ResponseTypeAPIKey is the AuthResponse.Type of a minted API key.
const ResponseTypeAPIKey = "api_key"

// Extra parameter keys understood by the exchange handlers.
const (
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamCodeVerifier        = "code_verifier"
)

// EntityType identifies the kind of principal a credential resolves to.
type EntityType string

const (
	// EntityAccount is a human or service account.
	EntityAccount EntityType = "ACCOUNT"
	// EntityApplication is an application owned by an account.
	EntityApplication EntityType = "APPLICATION"
)

// TokenRestrictions narrows the scope of a minted token.
type TokenRestrictions struct {
	Permissions []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Scopes      []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// Clone returns a deep copy of r. A nil receiver yields nil.
func (r *TokenRestrictions) Clone() *TokenRestrictions {
	if r == nil {
		return nil
	}
	return &TokenRestrictions{
		Permissions: slices.Clone(r.Permissions),
		Scopes:      slices.Clone(r.Scopes),
	}
}

// Narrow returns r limited further by other. A nil side leaves the other
// unchanged. ok is false when a dimension both sides restrict has nothing in
// common.
func (r *TokenRestrictions) Narrow(other *TokenRestrictions) (*TokenRestrictions, bool) {
	if r == nil {
		return other.Clone(), true
	}
	if other == nil {
		return r.Clone(), true
	}
	permissions, ok := intersect(r.Permissions, other.Permissions)
	if !ok {
		return nil, false
	}
	scopes, ok := intersect(r.Scopes, other.Scopes)
	if !ok {
		return nil, false
	}
	return &TokenRestrictions{Permissions: permissions, Scopes: scopes}, true
}

// intersect keeps the elements of a also in b, in a's order. An empty side
// does not restrict.
func intersect(a, b []string) ([]string, bool) {
	if len(a) == 0 {
		return slices.Clone(b), true
	}
	if len(b) == 0 {
		return slices.Clone(a), true
	}
	var out []string
	for _, v := range a {
		if slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out, len(out) > 0
}

// AuthRequest is the input to every exchange. It is treated as an immutable
// value: the With* helpers return modified copies and never touch the receiver.
type AuthRequest struct {
	Identifier        string             `json:"identifier,omitempty"`
	Password          string             `json:"password,omitempty"`
	Token             string             `json:"token,omitempty"`
	Domain            string             `json:"domain,omitempty"`
	Restrictions      *TokenRestrictions `json:"restrictions,omitempty"`
	ExtraParameters   map[string]string  `json:"extraParameters,omitempty"`
	ExternalSessionID string             `json:"externalSessionId,omitempty"`
}

// Clone returns a deep copy of the request.
func (r AuthRequest) Clone() AuthRequest {
	out := r
	out.Restrictions = r.Restrictions.Clone()
	out.ExtraParameters = maps.Clone(r.ExtraParameters)
	return out
}

// WithRestrictions returns a copy of the request carrying restrictions.
func (r AuthRequest) WithRestrictions(restrictions *TokenRestrictions) AuthRequest {
	out := r.Clone()
	out.Restrictions = restrictions.Clone()
	return out
}

// WithExtraParameter returns a copy of the request with key set to value.
func (r AuthRequest) WithExtraParameter(key, value string) AuthRequest {
	out := r.Clone()
	if out.ExtraParameters == nil {
		out.ExtraParameters = make(map[string]string, 1)
	}
	out.ExtraParameters[key] = value
	return out
}

// ExtraParameter returns the value stored under key, or the empty string.
func (r AuthRequest) ExtraParameter(key string) string {
	return r.ExtraParameters[key]
}

// OAuthTokens is the structured token of an "oidc" response.
type OAuthTokens struct {
	AccessToken  string `json:"accessToken"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// AuthResponse is the output of every exchange.
type AuthResponse struct {
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Type       string     `json:"type"`

	// Token holds the opaque minted credential. It is empty when OIDC is set.
	Token string `json:"token,omitempty"`

	// OIDC holds the access/id/refresh triple of an "oidc" response.
	OIDC *OAuthTokens `json:"oidc,omitempty"`

	RefreshToken string `json:"refreshToken,omitempty"`

	// ValidFor is the lifetime of Token in seconds, when known.
	ValidFor int64 `json:"validFor,omitempty"`
}
