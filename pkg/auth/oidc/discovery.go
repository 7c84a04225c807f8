// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oidc

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/stacklok/authguard/pkg/auth/pkce"
)

// Endpoint paths served relative to the issuer.
const (
	AuthorizationPath = "/oidc/auth"
	TokenPath         = "/oidc/token"
	JWKSPath          = "/.well-known/jwks.json"
	DiscoveryPath     = "/.well-known/openid-configuration"
)

// DiscoveryDocument is the OpenID provider metadata published at DiscoveryPath.
type DiscoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported,omitempty"`
}

// NewDiscoveryDocument describes the endpoints served under issuer. Tenant
// paths in the issuer are preserved.
func NewDiscoveryDocument(issuer string, signingAlgs []string) (*DiscoveryDocument, error) {
	issuerURL, err := url.Parse(issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}
	if issuerURL.Scheme == "" || issuerURL.Host == "" {
		return nil, fmt.Errorf("issuer must be an absolute URL: %s", issuer)
	}

	base := issuerURL.Scheme + "://" + issuerURL.Host
	tenant := strings.Trim(issuerURL.EscapedPath(), "/")
	endpoint := func(p string) string {
		return base + path.Join("/", tenant, p)
	}

	doc := &DiscoveryDocument{
		Issuer:                           issuer,
		AuthorizationEndpoint:            endpoint(AuthorizationPath),
		TokenEndpoint:                    endpoint(TokenPath),
		JWKSURI:                          endpoint(JWKSPath),
		ResponseTypesSupported:           []string{ResponseTypeCode},
		GrantTypesSupported:              []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: signingAlgs,
		CodeChallengeMethodsSupported:    []string{pkce.MethodS256},
	}
	return doc, doc.Validate()
}

// Validate checks that the document is complete and every endpoint is an
// absolute URL.
func (doc *DiscoveryDocument) Validate() error {
	if doc.Issuer == "" {
		return errors.New("missing issuer")
	}
	if len(doc.IDTokenSigningAlgValuesSupported) == 0 {
		return errors.New("missing id_token_signing_alg_values_supported")
	}

	endpoints := map[string]string{
		"authorization_endpoint": doc.AuthorizationEndpoint,
		"token_endpoint":         doc.TokenEndpoint,
		"jwks_uri":               doc.JWKSURI,
	}
	for name, endpoint := range endpoints {
		if endpoint == "" {
			return fmt.Errorf("missing %s", name)
		}
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}
