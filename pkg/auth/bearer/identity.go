// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bearer authenticates HTTP callers by the access tokens the engine
// itself mints.
package bearer

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// AnonymousSubject is the subject of callers on unauthenticated routes.
const AnonymousSubject = "anonymous"

// Identity is the caller resolved from a verified access token.
type Identity struct {
	// Subject is the account id ('sub' claim).
	Subject     string
	Domain      string
	Roles       []string
	Permissions []string
	Scopes      []string
	ClientID    string
	TokenID     string

	// Token is the raw access token. It is redacted in String and MarshalJSON.
	Token string
}

// HasPermission reports whether the identity carries permission.
func (i *Identity) HasPermission(permission string) bool {
	return i != nil && slices.Contains(i.Permissions, permission)
}

// String returns a representation with the token left out.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Subject:%q}", i.Subject)
}

// MarshalJSON redacts the token.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}

	type safeIdentity struct {
		Subject     string   `json:"subject"`
		Domain      string   `json:"domain,omitempty"`
		Roles       []string `json:"roles,omitempty"`
		Permissions []string `json:"permissions,omitempty"`
		Scopes      []string `json:"scopes,omitempty"`
		ClientID    string   `json:"clientId,omitempty"`
		TokenID     string   `json:"tokenId,omitempty"`
		Token       string   `json:"token,omitempty"`
	}

	token := i.Token
	if token != "" {
		token = "REDACTED"
	}
	return json.Marshal(&safeIdentity{
		Subject:     i.Subject,
		Domain:      i.Domain,
		Roles:       i.Roles,
		Permissions: i.Permissions,
		Scopes:      i.Scopes,
		ClientID:    i.ClientID,
		TokenID:     i.TokenID,
		Token:       token,
	})
}

type identityContextKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok && id != nil
}
