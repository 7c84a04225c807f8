// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/authguard/pkg/api/errors"
	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/oidc"
)

// OIDCRoutes exposes the OIDC orchestrator.
type OIDCRoutes struct {
	orchestrator *oidc.Orchestrator
}

// OIDCRouter creates the authorization and token endpoints. The account
// domain of an authorization request is the client's.
func OIDCRouter(orchestrator *oidc.Orchestrator) http.Handler {
	routes := OIDCRoutes{orchestrator: orchestrator}

	r := chi.NewRouter()
	r.Post("/auth", apierrors.ErrorHandler(routes.authorize))
	r.Post("/token", apierrors.ErrorHandler(routes.token))
	return r
}

type authorizeResponse struct {
	Code     string `json:"code"`
	State    string `json:"state,omitempty"`
	Location string `json:"location"`
}

type tokenRequest struct {
	GrantType    string `json:"grant_type" validate:"required,oneof=authorization_code refresh_token"`
	Code         string `json:"code" validate:"required_if=GrantType authorization_code"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token" validate:"required_if=GrantType refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// authorize accepts a form or JSON authorization request and answers with
// the issued code and the location to redirect the user agent to.
func (o *OIDCRoutes) authorize(w http.ResponseWriter, r *http.Request) error {
	var req oidc.AuthorizationRequest
	if isForm(r) {
		if err := parseForm(r); err != nil {
			return err
		}
		req = oidc.AuthorizationRequest{
			ResponseType:        r.PostForm.Get("response_type"),
			ClientID:            r.PostForm.Get("client_id"),
			RedirectURI:         r.PostForm.Get("redirect_uri"),
			Identifier:          r.PostForm.Get("identifier"),
			Password:            r.PostForm.Get("password"),
			Domain:              r.PostForm.Get("domain"),
			State:               r.PostForm.Get("state"),
			CodeChallenge:       r.PostForm.Get("code_challenge"),
			CodeChallengeMethod: r.PostForm.Get("code_challenge_method"),
			ExternalSessionID:   r.PostForm.Get("external_session_id"),
		}
		if err := validateRequest(&req); err != nil {
			return err
		}
	} else if err := decodeJSON(r, &req); err != nil {
		return err
	}

	resp, err := o.orchestrator.ProcessAuth(r.Context(), req)
	if err != nil {
		return err
	}
	location, err := oidc.RedirectLocation(req.RedirectURI, resp.Token, req.State)
	if err != nil {
		return err
	}
	apierrors.WriteJSON(w, http.StatusOK, authorizeResponse{Code: resp.Token, State: req.State, Location: location})
	return nil
}

// token redeems an authorization code or a refresh token.
func (o *OIDCRoutes) token(w http.ResponseWriter, r *http.Request) error {
	var req tokenRequest
	if isForm(r) {
		if err := parseForm(r); err != nil {
			return err
		}
		req = tokenRequest{
			GrantType:    r.PostForm.Get("grant_type"),
			Code:         r.PostForm.Get("code"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
			RefreshToken: r.PostForm.Get("refresh_token"),
		}
		if err := validateRequest(&req); err != nil {
			return err
		}
	} else if err := decodeJSON(r, &req); err != nil {
		return err
	}

	var (
		resp auth.AuthResponse
		err  error
	)
	switch req.GrantType {
	case oidc.GrantTypeAuthorizationCode:
		codeReq := auth.AuthRequest{Token: req.Code}
		if req.CodeVerifier != "" {
			codeReq = codeReq.WithExtraParameter(auth.ParamCodeVerifier, req.CodeVerifier)
		}
		resp, err = o.orchestrator.ProcessAuthCodeToken(r.Context(), codeReq)
	default:
		resp, err = o.orchestrator.ProcessRefreshToken(r.Context(), auth.AuthRequest{Token: req.RefreshToken})
	}
	if err != nil {
		return err
	}

	out := tokenResponse{TokenType: "Bearer", ExpiresIn: resp.ValidFor, RefreshToken: resp.RefreshToken}
	if resp.OIDC != nil {
		out.AccessToken = resp.OIDC.AccessToken
		out.IDToken = resp.OIDC.IDToken
	} else {
		out.AccessToken = resp.Token
	}
	w.Header().Set("Cache-Control", "no-store")
	apierrors.WriteJSON(w, http.StatusOK, out)
	return nil
}
