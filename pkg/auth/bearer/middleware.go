// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bearer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	autherrors "github.com/stacklok/authguard/pkg/errors"
	"github.com/stacklok/authguard/pkg/logger"
)

// TokenValidator resolves an identity from a raw access token.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*Identity, error)
}

// Middleware requires a valid bearer access token carrying permission on
// every request. An empty permission only requires a valid token.
type Middleware struct {
	validator  TokenValidator
	realm      string
	permission string
}

// NewMiddleware creates a Middleware. realm is reported in WWW-Authenticate
// challenges.
func NewMiddleware(validator TokenValidator, realm, permission string) *Middleware {
	return &Middleware{validator: validator, realm: realm, permission: permission}
}

// Handler wraps next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			m.challenge(w, http.StatusUnauthorized, "", "")
			return
		}

		id, err := m.validator.Validate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			if !autherrors.IsExpected(err) {
				logger.Errorw("failed to validate access token", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			description := "access token is invalid"
			if e, ok := autherrors.AsError(err); ok {
				description = e.Message
			}
			m.challenge(w, http.StatusUnauthorized, "invalid_token", description)
			return
		}

		if m.permission != "" && !id.HasPermission(m.permission) {
			logger.Debugw("caller lacks permission", "subject", id.Subject, "permission", m.permission)
			m.challenge(w, http.StatusForbidden, "insufficient_scope",
				fmt.Sprintf("the %s permission is required", m.permission))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// challenge writes an RFC 6750 WWW-Authenticate response.
func (m *Middleware) challenge(w http.ResponseWriter, status int, code, description string) {
	parts := []string{fmt.Sprintf(`realm="%s"`, escapeQuotes(m.realm))}
	if code != "" {
		parts = append(parts, fmt.Sprintf(`error="%s"`, code))
		if description != "" {
			parts = append(parts, fmt.Sprintf(`error_description="%s"`, escapeQuotes(description)))
		}
	}
	w.Header().Set("WWW-Authenticate", "Bearer "+strings.Join(parts, ", "))
	http.Error(w, http.StatusText(status), status)
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// AnonymousMiddleware marks every request as coming from an anonymous
// caller. It stands in for Middleware when authentication is disabled.
func AnonymousMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithIdentity(r.Context(), &Identity{Subject: AnonymousSubject})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
