// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bearer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authguard/pkg/auth/keys"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	autherrors "github.com/stacklok/authguard/pkg/errors"
)

const testIssuer = "https://auth.example.com"

func newSigner() *tokens.JWTSigner {
	return tokens.NewJWTSigner(keys.NewGeneratingProvider(keys.DefaultAlgorithm), testIssuer)
}

func mint(t *testing.T, signer *tokens.JWTSigner, subject string, ttl time.Duration, permissions ...string) string {
	t.Helper()
	now := time.Now()
	raw, err := signer.Sign(t.Context(), &tokens.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   subject,
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Domain:      "main",
		Permissions: permissions,
		ClientID:    "42",
	})
	require.NoError(t, err)
	return raw
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	signer := newSigner()
	v := NewValidator(signer)

	id, err := v.Validate(t.Context(), mint(t, signer, "acc-1", time.Hour, "authguard:admin"))
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id.Subject)
	assert.Equal(t, "main", id.Domain)
	assert.Equal(t, "42", id.ClientID)
	assert.Equal(t, "jti-1", id.TokenID)
	assert.True(t, id.HasPermission("authguard:admin"))
	assert.False(t, id.HasPermission("other"))

	tests := []struct {
		name  string
		raw   string
		check func(error) bool
	}{
		{name: "empty", raw: "", check: autherrors.IsInvalidToken},
		{name: "garbage", raw: "not-a-jwt", check: autherrors.IsInvalidToken},
		{name: "foreign key", raw: mint(t, newSigner(), "acc-1", time.Hour), check: autherrors.IsInvalidToken},
		{name: "expired", raw: mint(t, signer, "acc-1", -time.Minute), check: autherrors.IsExpiredToken},
		{name: "no subject", raw: mint(t, signer, "", time.Hour), check: autherrors.IsInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Validate(t.Context(), tt.raw)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	signer := newSigner()
	admin := mint(t, signer, "acc-1", time.Hour, "authguard:admin")
	reader := mint(t, signer, "acc-2", time.Hour, "read")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(id.Subject))
	})
	handler := NewMiddleware(NewValidator(signer), testIssuer, "authguard:admin").Handler(next)

	tests := []struct {
		name          string
		authorization string
		wantStatus    int
		wantBody      string
		wantChallenge string
	}{
		{
			name:          "admin token",
			authorization: "Bearer " + admin,
			wantStatus:    http.StatusOK,
			wantBody:      "acc-1",
		},
		{
			name:          "lower-case scheme",
			authorization: "bearer " + admin,
			wantStatus:    http.StatusOK,
			wantBody:      "acc-1",
		},
		{
			name:          "missing header",
			wantStatus:    http.StatusUnauthorized,
			wantChallenge: `Bearer realm="https://auth.example.com"`,
		},
		{
			name:          "basic scheme",
			authorization: "Basic YWxpY2U6czNjcmV0",
			wantStatus:    http.StatusUnauthorized,
			wantChallenge: `Bearer realm="https://auth.example.com"`,
		},
		{
			name:          "invalid token",
			authorization: "Bearer junk",
			wantStatus:    http.StatusUnauthorized,
			wantChallenge: `Bearer realm="https://auth.example.com", error="invalid_token", error_description="access token is invalid"`,
		},
		{
			name:          "missing permission",
			authorization: "Bearer " + reader,
			wantStatus:    http.StatusForbidden,
			wantChallenge: `Bearer realm="https://auth.example.com", error="insufficient_scope", error_description="the authguard:admin permission is required"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantChallenge, rec.Header().Get("WWW-Authenticate"))
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestAnonymousMiddleware(t *testing.T) {
	t.Parallel()

	var got *Identity
	handler := AnonymousMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.Equal(t, AnonymousSubject, got.Subject)
}

func TestIdentity_RedactsToken(t *testing.T) {
	t.Parallel()

	id := &Identity{Subject: "acc-1", Token: "secret-token"}
	assert.NotContains(t, id.String(), "secret-token")

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-token")
	assert.Contains(t, string(data), `"token":"REDACTED"`)

	var nilID *Identity
	assert.Equal(t, "<nil>", nilID.String())
}
