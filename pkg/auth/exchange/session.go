// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"context"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	"github.com/stacklok/authguard/pkg/auth/verifier"
)

// SessionToAccessToken mints an access and refresh token pair for the
// account behind a live, non-tracking session.
type SessionToAccessToken struct {
	pair
	sessions *verifier.SessionVerifier
	accounts storage.AccountStore
	access   *tokens.AccessTokenProvider
}

// NewSessionToAccessToken creates the sessionToken→accessToken handler.
func NewSessionToAccessToken(
	sessions *verifier.SessionVerifier, accounts storage.AccountStore, access *tokens.AccessTokenProvider,
) *SessionToAccessToken {
	return &SessionToAccessToken{
		pair:     pair{auth.TokenTypeSession, auth.TokenTypeAccess},
		sessions: sessions,
		accounts: accounts,
		access:   access,
	}
}

// Exchange implements Handler.
func (h *SessionToAccessToken) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	session, err := h.sessions.Verify(ctx, req.Token)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	account, err := resolveAccount(ctx, h.accounts, session.AccountID)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	return h.access.Generate(ctx, account, req.Restrictions,
		tokens.OptionsFromRequest(ctx, tokens.WithSource(h.from)))
}
