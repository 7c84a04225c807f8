// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	"github.com/stacklok/authguard/pkg/auth/verifier"
	"github.com/stacklok/authguard/pkg/events"
)

// Components is everything the built-in handlers are assembled from.
type Components struct {
	Accounts     storage.AccountStore
	Applications storage.ApplicationStore

	Basic        *verifier.BasicVerifier
	Sessions     *verifier.SessionVerifier
	Codes        *verifier.AccountTokenVerifier
	Refresh      *verifier.AccountTokenVerifier
	Passwordless *verifier.AccountTokenVerifier

	AccessTokens  *tokens.AccessTokenProvider
	OIDCTokens    *tokens.OIDCProvider
	CodeTokens    *tokens.AuthorizationCodeProvider
	MagicTokens   *tokens.PasswordlessProvider
	SessionTokens *tokens.SessionProvider
	APIKeys       *tokens.APIKeyProvider

	Publisher events.Publisher
}

// DefaultHandlers returns the built-in registration list.
func DefaultHandlers(c Components) []Handler {
	publisher := c.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	return []Handler{
		NewBasicToAccessToken(c.Basic, c.AccessTokens, publisher),
		NewBasicToPasswordless(c.Basic, c.MagicTokens, publisher),
		NewBasicToOIDC(c.Basic, c.OIDCTokens, publisher),
		NewBasicToAuthorizationCode(c.Basic, c.CodeTokens),
		NewBasicToSessionToken(c.Basic, c.SessionTokens, publisher),
		NewAuthorizationCodeToAccessToken(c.Codes, c.Accounts, c.AccessTokens),
		NewAuthorizationCodeToOIDC(c.Codes, c.Accounts, c.OIDCTokens),
		NewRefreshToAccessToken(c.Refresh, c.Accounts, c.AccessTokens),
		NewPasswordlessToAccessToken(c.Passwordless, c.Accounts, c.AccessTokens),
		NewSessionToAccessToken(c.Sessions, c.Accounts, c.AccessTokens),
		NewAppToAPIKey(c.Applications, c.APIKeys, publisher),
	}
}
