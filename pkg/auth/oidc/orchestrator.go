// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oidc drives the OpenID Connect authorization code flow over the
// exchange dispatcher. It validates protocol preconditions and shapes
// requests; every credential check and every mint happens in an exchange.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/async"
	"github.com/stacklok/authguard/pkg/auth/exchange"
	"github.com/stacklok/authguard/pkg/auth/pkce"
	"github.com/stacklok/authguard/pkg/auth/storage"
	autherrors "github.com/stacklok/authguard/pkg/errors"
)

// Protocol values.
const (
	ResponseTypeCode           = "code"
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// AuthorizationRequest is an authorization request carrying the resource
// owner's credentials.
type AuthorizationRequest struct {
	ResponseType        string `json:"response_type" validate:"required"`
	ClientID            string `json:"client_id" validate:"required"`
	RedirectURI         string `json:"redirect_uri" validate:"required"`
	Identifier          string `json:"identifier" validate:"required"`
	Password            string `json:"password" validate:"required"`
	// Domain is optional. When set it must name the client's domain.
	Domain              string `json:"domain,omitempty"`
	State               string `json:"state,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	ExternalSessionID   string `json:"external_session_id,omitempty"`
}

// Orchestrator implements the three OIDC entry points.
type Orchestrator struct {
	exchanger exchange.Exchanger
	clients   storage.ClientStore
}

// NewOrchestrator creates an Orchestrator. It fails when exchanger lacks any
// of the exchanges the flow relies on.
func NewOrchestrator(exchanger exchange.Exchanger, clients storage.ClientStore) (*Orchestrator, error) {
	required := [][2]string{
		{auth.TokenTypeBasic, auth.TokenTypeAuthorizationCode},
		{auth.TokenTypeAuthorizationCode, auth.TokenTypeOIDC},
		{auth.TokenTypeRefresh, auth.TokenTypeAccess},
	}
	for _, p := range required {
		if !exchanger.SupportsExchange(p[0], p[1]) {
			return nil, fmt.Errorf("oidc flow requires the %s to %s exchange", p[0], p[1])
		}
	}
	return &Orchestrator{exchanger: exchanger, clients: clients}, nil
}

// ProcessAuth validates an authorization request and issues an
// authorization code bound to the client.
func (o *Orchestrator) ProcessAuth(ctx context.Context, req AuthorizationRequest) (auth.AuthResponse, error) {
	if req.ResponseType != ResponseTypeCode {
		return auth.AuthResponse{}, autherrors.NewGenericAuthFailureError(
			fmt.Sprintf("invalid response type %q", req.ResponseType))
	}

	clientID, err := strconv.ParseInt(req.ClientID, 10, 64)
	if err != nil {
		return auth.AuthResponse{}, autherrors.NewAppDoesNotExistError(
			fmt.Sprintf("invalid client id %q", req.ClientID), req.ClientID)
	}

	client, err := o.clients.GetClient(ctx, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return auth.AuthResponse{}, autherrors.NewAppDoesNotExistError(
			fmt.Sprintf("client %s does not exist", req.ClientID), req.ClientID)
	}
	if err != nil {
		return auth.AuthResponse{}, fmt.Errorf("failed to look up client: %w", err)
	}

	if client.ClientType != storage.ClientTypeSSO {
		return auth.AuthResponse{}, autherrors.NewClientNotPermittedError(
			"client is not permitted to perform OIDC requests", req.ClientID)
	}

	if err := checkRedirect(req.RedirectURI, client.BaseURL); err != nil {
		return auth.AuthResponse{}, err
	}

	// The client decides the tenant the resource owner is looked up in.
	if req.Domain != "" && req.Domain != client.Domain {
		return auth.AuthResponse{}, autherrors.NewClientNotPermittedError(
			fmt.Sprintf("client is not permitted in domain %q", req.Domain), req.ClientID)
	}

	basic := auth.AuthRequest{
		Identifier:        req.Identifier,
		Password:          req.Password,
		Domain:            client.Domain,
		ExternalSessionID: req.ExternalSessionID,
	}
	if req.CodeChallenge != "" || req.CodeChallengeMethod != "" {
		if req.CodeChallengeMethod != pkce.MethodS256 {
			return auth.AuthResponse{}, autherrors.NewGenericAuthFailureError("code_challenge_method must be S256")
		}
		if req.CodeChallenge == "" {
			return auth.AuthResponse{}, autherrors.NewGenericAuthFailureError("code_challenge is missing")
		}
		basic = basic.
			WithExtraParameter(auth.ParamCodeChallenge, req.CodeChallenge).
			WithExtraParameter(auth.ParamCodeChallengeMethod, req.CodeChallengeMethod)
	}

	rc, _ := auth.RequestContextFromContext(ctx)
	rc.ClientID = req.ClientID
	return o.exchanger.Exchange(auth.WithRequestContext(ctx, rc), basic, nil,
		auth.TokenTypeBasic, auth.TokenTypeAuthorizationCode)
}

// ProcessAuthAsync is the non-blocking form of ProcessAuth.
func (o *Orchestrator) ProcessAuthAsync(ctx context.Context, req AuthorizationRequest) *async.Future[auth.AuthResponse] {
	return async.Go(ctx, func(ctx context.Context) (auth.AuthResponse, error) {
		return o.ProcessAuth(ctx, req)
	})
}

// ProcessAuthCodeToken redeems an authorization code for OIDC tokens. A
// PKCE code verifier travels in the request's extra parameters.
func (o *Orchestrator) ProcessAuthCodeToken(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	return o.exchanger.Exchange(ctx, req, nil, auth.TokenTypeAuthorizationCode, auth.TokenTypeOIDC)
}

// ProcessAuthCodeTokenAsync is the non-blocking form of ProcessAuthCodeToken.
func (o *Orchestrator) ProcessAuthCodeTokenAsync(ctx context.Context, req auth.AuthRequest) *async.Future[auth.AuthResponse] {
	return exchange.Async(ctx, o.exchanger, req, nil, auth.TokenTypeAuthorizationCode, auth.TokenTypeOIDC)
}

// ProcessRefreshToken exchanges a refresh token for a new token pair.
func (o *Orchestrator) ProcessRefreshToken(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	return o.exchanger.Exchange(ctx, req, nil, auth.TokenTypeRefresh, auth.TokenTypeAccess)
}

// ProcessRefreshTokenAsync is the non-blocking form of ProcessRefreshToken.
func (o *Orchestrator) ProcessRefreshTokenAsync(ctx context.Context, req auth.AuthRequest) *async.Future[auth.AuthResponse] {
	return exchange.Async(ctx, o.exchanger, req, nil, auth.TokenTypeRefresh, auth.TokenTypeAccess)
}

// checkRedirect requires redirectURI to be an absolute URL whose host
// matches the client's base URL, ignoring case.
func checkRedirect(redirectURI, baseURL string) error {
	parsed, err := url.ParseRequestURI(redirectURI)
	if err != nil || parsed.Host == "" {
		return autherrors.NewGenericAuthFailureError("invalid redirect URI")
	}
	if !strings.EqualFold(parsed.Hostname(), baseHost(baseURL)) {
		return autherrors.NewGenericAuthFailureError("redirect URI does not match the client base URL")
	}
	return nil
}

// baseHost accepts a bare host or a full URL.
func baseHost(baseURL string) string {
	if strings.Contains(baseURL, "://") {
		if u, err := url.Parse(baseURL); err == nil {
			return u.Hostname()
		}
	}
	host, _, _ := strings.Cut(baseURL, "/")
	return (&url.URL{Host: host}).Hostname()
}

// RedirectLocation appends the code and state to redirectURI.
func RedirectLocation(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	q := u.Query()
	q.Set(ResponseTypeCode, code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
