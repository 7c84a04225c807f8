// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth holds the value types shared by every stage of the token
// exchange pipeline: requests, responses, restrictions and the per-request
// context that travels alongside them.
package auth

import (
	"context"
)

// RequestContextKey is the key used to store RequestContext in a context.Context.
//
// Using an empty struct as the key prevents collisions with other context keys,
// as each empty struct type is distinct even if they have the same name in different packages.
type RequestContextKey struct{}

// RequestContext carries caller metadata that is not part of the credential
// itself but influences what gets minted, such as the OAuth client on whose
// behalf an authorization code is issued.
type RequestContext struct {
	// ClientID is the resolved OAuth client id, set by the OIDC orchestrator.
	ClientID string

	// Source identifies the entry point of the request (e.g. "http", "cli").
	Source string

	// IPAddress and UserAgent are recorded for audit correlation only.
	IPAddress string
	UserAgent string
}

// WithRequestContext stores a RequestContext in the context.
// A later call replaces any previously stored value.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, RequestContextKey{}, rc)
}

// RequestContextFromContext retrieves the RequestContext from the context.
// Returns the zero value and false if none was stored.
func RequestContextFromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(RequestContextKey{}).(RequestContext)
	return rc, ok
}

// ClientIDFromContext is a shorthand returning the client id of the stored
// RequestContext, or the empty string.
func ClientIDFromContext(ctx context.Context) string {
	rc, _ := RequestContextFromContext(ctx)
	return rc.ClientID
}
