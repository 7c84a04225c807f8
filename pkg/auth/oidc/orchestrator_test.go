// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oidc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/authguard/pkg/auth"
	exchangemocks "github.com/stacklok/authguard/pkg/auth/exchange/mocks"
	"github.com/stacklok/authguard/pkg/auth/storage"
	storagemocks "github.com/stacklok/authguard/pkg/auth/storage/mocks"
	autherrors "github.com/stacklok/authguard/pkg/errors"
)

func newOrchestrator(t *testing.T) (*Orchestrator, *exchangemocks.MockExchanger, *storagemocks.MockClientStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	ex := exchangemocks.NewMockExchanger(ctrl)
	clients := storagemocks.NewMockClientStore(ctrl)
	ex.EXPECT().SupportsExchange(gomock.Any(), gomock.Any()).Return(true).Times(3)

	o, err := NewOrchestrator(ex, clients)
	require.NoError(t, err)
	return o, ex, clients
}

func ssoClient() *storage.Client {
	return &storage.Client{ID: 42, ClientType: storage.ClientTypeSSO, Domain: "tenant-a", BaseURL: "app.example.com"}
}

func validRequest() AuthorizationRequest {
	return AuthorizationRequest{
		ResponseType: "code",
		ClientID:     "42",
		RedirectURI:  "https://app.example.com/cb",
		Identifier:   "alice",
		Password:     "s3cret",
	}
}

func TestNewOrchestrator_RequiresExchanges(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	ex := exchangemocks.NewMockExchanger(ctrl)
	ex.EXPECT().SupportsExchange(auth.TokenTypeBasic, auth.TokenTypeAuthorizationCode).Return(true)
	ex.EXPECT().SupportsExchange(auth.TokenTypeAuthorizationCode, auth.TokenTypeOIDC).Return(false)

	_, err := NewOrchestrator(ex, storagemocks.NewMockClientStore(ctrl))
	assert.ErrorContains(t, err, "authorizationCode to oidc")
}

func TestProcessAuth_Dispatches(t *testing.T) {
	t.Parallel()

	o, ex, clients := newOrchestrator(t)
	clients.EXPECT().GetClient(gomock.Any(), int64(42)).Return(ssoClient(), nil)
	ex.EXPECT().
		Exchange(gomock.Any(), gomock.Any(), gomock.Nil(), auth.TokenTypeBasic, auth.TokenTypeAuthorizationCode).
		DoAndReturn(func(ctx context.Context, req auth.AuthRequest, _ *auth.TokenRestrictions, _, _ string) (auth.AuthResponse, error) {
			assert.Equal(t, "42", auth.ClientIDFromContext(ctx))
			rc, _ := auth.RequestContextFromContext(ctx)
			assert.Equal(t, "http", rc.Source, "existing request context is preserved")
			assert.Equal(t, "alice", req.Identifier)
			assert.Equal(t, "s3cret", req.Password)
			assert.Equal(t, "tenant-a", req.Domain, "the client decides the domain")
			assert.Empty(t, req.ExtraParameters)
			return auth.AuthResponse{Type: auth.TokenTypeAuthorizationCode, Token: "code"}, nil
		})

	ctx := auth.WithRequestContext(t.Context(), auth.RequestContext{Source: "http"})
	resp, err := o.ProcessAuthAsync(ctx, validRequest()).Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "code", resp.Token)
}

func TestProcessAuth_PKCE(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		challenge string
		method    string
		wantMsg   string
	}{
		{name: "plain method", challenge: "abc", method: "plain", wantMsg: "must be S256"},
		{name: "missing challenge", method: "S256", wantMsg: "missing"},
		{name: "missing method", challenge: "abc", wantMsg: "must be S256"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o, _, clients := newOrchestrator(t)
			clients.EXPECT().GetClient(gomock.Any(), int64(42)).Return(ssoClient(), nil)

			req := validRequest()
			req.CodeChallenge = tt.challenge
			req.CodeChallengeMethod = tt.method
			_, err := o.ProcessAuth(t.Context(), req)
			require.True(t, autherrors.IsGenericAuthFailure(err), "unexpected error: %v", err)
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func TestProcessAuth_PKCEAttached(t *testing.T) {
	t.Parallel()

	o, ex, clients := newOrchestrator(t)
	clients.EXPECT().GetClient(gomock.Any(), int64(42)).Return(ssoClient(), nil)
	ex.EXPECT().
		Exchange(gomock.Any(), gomock.Any(), gomock.Nil(), auth.TokenTypeBasic, auth.TokenTypeAuthorizationCode).
		DoAndReturn(func(_ context.Context, req auth.AuthRequest, _ *auth.TokenRestrictions, _, _ string) (auth.AuthResponse, error) {
			assert.Equal(t, "abc", req.ExtraParameter(auth.ParamCodeChallenge))
			assert.Equal(t, "S256", req.ExtraParameter(auth.ParamCodeChallengeMethod))
			return auth.AuthResponse{Token: "code"}, nil
		})

	req := validRequest()
	req.CodeChallenge = "abc"
	req.CodeChallengeMethod = "S256"
	_, err := o.ProcessAuth(t.Context(), req)
	require.NoError(t, err)
}

func TestProcessAuth_MatchingDomainAccepted(t *testing.T) {
	t.Parallel()

	o, ex, clients := newOrchestrator(t)
	clients.EXPECT().GetClient(gomock.Any(), int64(42)).Return(ssoClient(), nil)
	ex.EXPECT().
		Exchange(gomock.Any(), gomock.Any(), gomock.Nil(), auth.TokenTypeBasic, auth.TokenTypeAuthorizationCode).
		DoAndReturn(func(_ context.Context, req auth.AuthRequest, _ *auth.TokenRestrictions, _, _ string) (auth.AuthResponse, error) {
			assert.Equal(t, "tenant-a", req.Domain)
			return auth.AuthResponse{Token: "code"}, nil
		})

	req := validRequest()
	req.Domain = "tenant-a"
	_, err := o.ProcessAuth(t.Context(), req)
	require.NoError(t, err)
}

func TestProcessAuth_Rejections(t *testing.T) {
	t.Parallel()

	standard := ssoClient()
	standard.ClientType = storage.ClientTypeStandard

	tests := []struct {
		name      string
		mutate    func(*AuthorizationRequest)
		client    *storage.Client
		clientErr error
		lookup    bool
		wantCheck func(error) bool
	}{
		{
			name:      "response type token",
			mutate:    func(r *AuthorizationRequest) { r.ResponseType = "token" },
			wantCheck: autherrors.IsGenericAuthFailure,
		},
		{
			name:      "non numeric client id",
			mutate:    func(r *AuthorizationRequest) { r.ClientID = "portal" },
			wantCheck: autherrors.IsAppDoesNotExist,
		},
		{
			name:      "unknown client",
			lookup:    true,
			clientErr: storage.ErrNotFound,
			wantCheck: autherrors.IsAppDoesNotExist,
		},
		{
			name:      "standard client",
			lookup:    true,
			client:    standard,
			wantCheck: autherrors.IsClientNotPermitted,
		},
		{
			name:      "foreign redirect host",
			mutate:    func(r *AuthorizationRequest) { r.RedirectURI = "https://evil.example.com/cb" },
			lookup:    true,
			client:    ssoClient(),
			wantCheck: autherrors.IsGenericAuthFailure,
		},
		{
			name:      "relative redirect",
			mutate:    func(r *AuthorizationRequest) { r.RedirectURI = "/cb" },
			lookup:    true,
			client:    ssoClient(),
			wantCheck: autherrors.IsGenericAuthFailure,
		},
		{
			name:      "domain of another tenant",
			mutate:    func(r *AuthorizationRequest) { r.Domain = "tenant-b" },
			lookup:    true,
			client:    ssoClient(),
			wantCheck: autherrors.IsClientNotPermitted,
		},
		{
			name:      "malformed redirect",
			mutate:    func(r *AuthorizationRequest) { r.RedirectURI = "::not a url" },
			lookup:    true,
			client:    ssoClient(),
			wantCheck: autherrors.IsGenericAuthFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// The exchanger mock has no Exchange expectation: any dispatch fails the test.
			o, _, clients := newOrchestrator(t)
			if tt.lookup {
				clients.EXPECT().GetClient(gomock.Any(), int64(42)).Return(tt.client, tt.clientErr)
			}

			req := validRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			_, err := o.ProcessAuth(t.Context(), req)
			require.Error(t, err)
			assert.True(t, tt.wantCheck(err), "unexpected error: %v", err)
		})
	}
}

func TestProcessAuth_RedirectHostIgnoresCase(t *testing.T) {
	t.Parallel()

	o, ex, clients := newOrchestrator(t)
	client := ssoClient()
	client.BaseURL = "https://App.Example.com"
	clients.EXPECT().GetClient(gomock.Any(), int64(42)).Return(client, nil)
	ex.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(auth.AuthResponse{Token: "code"}, nil)

	req := validRequest()
	req.RedirectURI = "https://APP.example.COM:8443/callback?x=1"
	_, err := o.ProcessAuth(t.Context(), req)
	require.NoError(t, err)
}

func TestProcessAuth_StoreFault(t *testing.T) {
	t.Parallel()

	o, _, clients := newOrchestrator(t)
	fault := errors.New("db down")
	clients.EXPECT().GetClient(gomock.Any(), int64(42)).Return(nil, fault)

	_, err := o.ProcessAuth(t.Context(), validRequest())
	assert.ErrorIs(t, err, fault)
}

func TestProcessTokenEntryPoints(t *testing.T) {
	t.Parallel()

	o, ex, _ := newOrchestrator(t)
	req := auth.AuthRequest{Token: "t"}
	ex.EXPECT().Exchange(gomock.Any(), req, gomock.Nil(), auth.TokenTypeAuthorizationCode, auth.TokenTypeOIDC).
		Return(auth.AuthResponse{Type: auth.TokenTypeOIDC}, nil).Times(2)
	ex.EXPECT().Exchange(gomock.Any(), req, gomock.Nil(), auth.TokenTypeRefresh, auth.TokenTypeAccess).
		Return(auth.AuthResponse{Type: auth.TokenTypeAccess}, nil).Times(2)

	resp, err := o.ProcessAuthCodeToken(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeOIDC, resp.Type)

	resp, err = o.ProcessAuthCodeTokenAsync(t.Context(), req).Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeOIDC, resp.Type)

	resp, err = o.ProcessRefreshToken(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeAccess, resp.Type)

	resp, err = o.ProcessRefreshTokenAsync(t.Context(), req).Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeAccess, resp.Type)
}

func TestRedirectLocation(t *testing.T) {
	t.Parallel()

	loc, err := RedirectLocation("https://app.example.com/cb?x=1", "abc", "xyz")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/cb?code=abc&state=xyz&x=1", loc)

	loc, err = RedirectLocation("https://app.example.com/cb", "abc", "")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/cb?code=abc", loc)
}

func TestNewDiscoveryDocument(t *testing.T) {
	t.Parallel()

	doc, err := NewDiscoveryDocument("https://auth.example.com/tenant", []string{"ES256"})
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/tenant/oidc/auth", doc.AuthorizationEndpoint)
	assert.Equal(t, "https://auth.example.com/tenant/oidc/token", doc.TokenEndpoint)
	assert.Equal(t, "https://auth.example.com/tenant/.well-known/jwks.json", doc.JWKSURI)
	assert.Equal(t, []string{"S256"}, doc.CodeChallengeMethodsSupported)

	_, err = NewDiscoveryDocument("auth.example.com", []string{"ES256"})
	assert.Error(t, err)

	_, err = NewDiscoveryDocument("https://auth.example.com", nil)
	assert.ErrorContains(t, err, "id_token_signing_alg_values_supported")
}
