// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"context"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	"github.com/stacklok/authguard/pkg/auth/verifier"
	"github.com/stacklok/authguard/pkg/events"
)

// BasicToAccessToken authenticates basic credentials and mints an access
// and refresh token pair.
type BasicToAccessToken struct {
	pair
	basic     *verifier.BasicVerifier
	access    *tokens.AccessTokenProvider
	publisher events.Publisher
}

// NewBasicToAccessToken creates the basic→accessToken handler.
func NewBasicToAccessToken(
	basic *verifier.BasicVerifier, access *tokens.AccessTokenProvider, publisher events.Publisher,
) *BasicToAccessToken {
	return &BasicToAccessToken{
		pair:      pair{auth.TokenTypeBasic, auth.TokenTypeAccess},
		basic:     basic,
		access:    access,
		publisher: publisher,
	}
}

// Exchange implements Handler.
func (h *BasicToAccessToken) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	account, err := h.basic.Authenticate(ctx, req)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	resp, err := h.access.Generate(ctx, account, req.Restrictions,
		tokens.OptionsFromRequest(ctx, tokens.WithSource(h.from)))
	if err != nil {
		return auth.AuthResponse{}, err
	}
	publishAuthenticated(ctx, h.publisher, account, h.from, h.to)
	return resp, nil
}

// BasicToOIDC authenticates basic credentials and mints an access token,
// an ID token and a refresh token packaged as one "oidc" response.
type BasicToOIDC struct {
	pair
	basic     *verifier.BasicVerifier
	oidc      *tokens.OIDCProvider
	publisher events.Publisher
}

// NewBasicToOIDC creates the basic→oidc handler.
func NewBasicToOIDC(basic *verifier.BasicVerifier, oidc *tokens.OIDCProvider, publisher events.Publisher) *BasicToOIDC {
	return &BasicToOIDC{
		pair:      pair{auth.TokenTypeBasic, auth.TokenTypeOIDC},
		basic:     basic,
		oidc:      oidc,
		publisher: publisher,
	}
}

// Exchange implements Handler.
func (h *BasicToOIDC) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	account, err := h.basic.Authenticate(ctx, req)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	resp, err := h.oidc.Generate(ctx, account, req.Restrictions,
		tokens.OptionsFromRequest(ctx, tokens.WithSource(h.from)))
	if err != nil {
		return auth.AuthResponse{}, err
	}
	publishAuthenticated(ctx, h.publisher, account, h.from, h.to)
	return resp, nil
}

// BasicToAuthorizationCode authenticates basic credentials and issues an
// authorization code bound to the client in the request context.
type BasicToAuthorizationCode struct {
	pair
	basic *verifier.BasicVerifier
	codes *tokens.AuthorizationCodeProvider
}

// NewBasicToAuthorizationCode creates the basic→authorizationCode handler.
func NewBasicToAuthorizationCode(
	basic *verifier.BasicVerifier, codes *tokens.AuthorizationCodeProvider,
) *BasicToAuthorizationCode {
	return &BasicToAuthorizationCode{
		pair:  pair{auth.TokenTypeBasic, auth.TokenTypeAuthorizationCode},
		basic: basic,
		codes: codes,
	}
}

// Exchange implements Handler. A PKCE challenge in the extra parameters
// takes precedence over request restrictions.
func (h *BasicToAuthorizationCode) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	account, err := h.basic.Authenticate(ctx, req)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	info := storage.NoAdditionalInformation()
	switch {
	case req.ExtraParameter(auth.ParamCodeChallenge) != "":
		info = storage.PKCEInformation(
			req.ExtraParameter(auth.ParamCodeChallenge),
			req.ExtraParameter(auth.ParamCodeChallengeMethod))
	case req.Restrictions != nil:
		info = storage.RestrictionsInformation(req.Restrictions)
	}

	return h.codes.Generate(ctx, account, info, tokens.OptionsFromRequest(ctx, tokens.WithSource(h.from)))
}

// BasicToPasswordless authenticates basic credentials under a tracking
// session and issues a single-use passwordless token for out-of-band delivery.
type BasicToPasswordless struct {
	pair
	basic        *verifier.BasicVerifier
	passwordless *tokens.PasswordlessProvider
	publisher    events.Publisher
}

// NewBasicToPasswordless creates the basic→passwordless handler.
func NewBasicToPasswordless(
	basic *verifier.BasicVerifier, passwordless *tokens.PasswordlessProvider, publisher events.Publisher,
) *BasicToPasswordless {
	return &BasicToPasswordless{
		pair:         pair{auth.TokenTypeBasic, auth.TokenTypePasswordless},
		basic:        basic,
		passwordless: passwordless,
		publisher:    publisher,
	}
}

// Exchange implements Handler.
func (h *BasicToPasswordless) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	account, session, err := h.basic.AuthenticateWithSession(ctx, req)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	resp, err := h.passwordless.Generate(ctx, account, tokens.OptionsFromRequest(ctx,
		tokens.WithSource(auth.TokenTypeBasic),
		tokens.WithTrackingSession(session.Token)))
	if err != nil {
		return auth.AuthResponse{}, err
	}

	h.publisher.Publish(ctx, events.ChannelPasswordless, events.Message{
		Event:      events.EventPasswordlessIssued,
		EntityType: auth.EntityAccount,
		EntityID:   account.ID,
		Attributes: map[string]string{
			"token":            resp.Token,
			"tracking_session": session.Token,
			"email":            account.Email,
		},
	})
	return resp, nil
}

// BasicToSessionToken authenticates basic credentials and opens a session.
type BasicToSessionToken struct {
	pair
	basic     *verifier.BasicVerifier
	sessions  *tokens.SessionProvider
	publisher events.Publisher
}

// NewBasicToSessionToken creates the basic→sessionToken handler.
func NewBasicToSessionToken(
	basic *verifier.BasicVerifier, sessions *tokens.SessionProvider, publisher events.Publisher,
) *BasicToSessionToken {
	return &BasicToSessionToken{
		pair:      pair{auth.TokenTypeBasic, auth.TokenTypeSession},
		basic:     basic,
		sessions:  sessions,
		publisher: publisher,
	}
}

// Exchange implements Handler.
func (h *BasicToSessionToken) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	account, err := h.basic.Authenticate(ctx, req)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	resp, err := h.sessions.Generate(ctx, account, req.ExternalSessionID)
	if err != nil {
		return auth.AuthResponse{}, err
	}
	h.publisher.Publish(ctx, events.ChannelSessions, events.Message{
		Event:      events.EventSessionCreated,
		EntityType: auth.EntityAccount,
		EntityID:   account.ID,
	})
	return resp, nil
}

func publishAuthenticated(ctx context.Context, p events.Publisher, account *storage.Account, from, to string) {
	p.Publish(ctx, events.ChannelAccounts, events.Message{
		Event:      events.EventAuthenticated,
		EntityType: auth.EntityAccount,
		EntityID:   account.ID,
		Attributes: map[string]string{"from": from, "to": to},
	})
}
