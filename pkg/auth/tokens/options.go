// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"

	"github.com/stacklok/authguard/pkg/auth"
)

// Options is the per-issuance metadata attached to a minted credential.
type Options struct {
	// Source names the exchange that produced the credential, e.g. "basic".
	Source string

	// TrackingSession links the credential to the tracking session it was
	// issued under, for audit correlation.
	TrackingSession string

	// ClientID is the OAuth client the credential was issued to.
	ClientID string
}

// Option sets a field of Options.
type Option func(*Options)

// WithSource sets Options.Source.
func WithSource(source string) Option {
	return func(o *Options) {
		o.Source = source
	}
}

// WithTrackingSession sets Options.TrackingSession.
func WithTrackingSession(sessionToken string) Option {
	return func(o *Options) {
		o.TrackingSession = sessionToken
	}
}

// WithClientID sets Options.ClientID.
func WithClientID(clientID string) Option {
	return func(o *Options) {
		o.ClientID = clientID
	}
}

// NewOptions applies opts to an empty Options.
func NewOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OptionsFromRequest seeds Options from the request context (client id) and
// then applies opts, which take precedence.
func OptionsFromRequest(ctx context.Context, opts ...Option) Options {
	o := Options{ClientID: auth.ClientIDFromContext(ctx)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
