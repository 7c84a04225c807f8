// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/keys"
	"github.com/stacklok/authguard/pkg/auth/storage"
)

const testIssuer = "https://auth.example.com"

type fixture struct {
	store  *storage.MemoryStorage
	signer *JWTSigner
	cfg    Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{
		store:  store,
		signer: NewJWTSigner(keys.NewGeneratingProvider(keys.DefaultAlgorithm), testIssuer),
		cfg:    Config{Issuer: testIssuer, Audience: "authguard"},
	}
}

func testAccount() *storage.Account {
	return &storage.Account{
		ID:          "acc-1",
		Domain:      "main",
		Email:       "alice@example.com",
		Roles:       []string{"admin"},
		Permissions: []string{"users:read", "users:write", "billing:read"},
		Active:      true,
	}
}

func TestAccessTokenProvider_Generate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := NewAccessTokenProvider(f.cfg, f.signer, f.store)
	ctx := t.Context()

	resp, err := p.Generate(ctx, testAccount(), nil, NewOptions(WithSource("basic")))
	require.NoError(t, err)

	assert.Equal(t, auth.EntityAccount, resp.EntityType)
	assert.Equal(t, "acc-1", resp.EntityID)
	assert.Equal(t, auth.TokenTypeAccess, resp.Type)
	assert.Equal(t, int64(DefaultAccessTokenTTL.Seconds()), resp.ValidFor)
	require.NotEmpty(t, resp.RefreshToken)

	var claims AccessClaims
	require.NoError(t, f.signer.Parse(ctx, resp.Token, &claims))
	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{"authguard"}, claims.Audience)
	assert.Equal(t, "main", claims.Domain)
	assert.Equal(t, []string{"admin"}, claims.Roles)
	assert.ElementsMatch(t, testAccount().Permissions, claims.Permissions)
	assert.Nil(t, claims.Restrictions)
	assert.Equal(t, "basic", claims.Source)
	assert.NotEmpty(t, claims.ID)

	refresh, err := f.store.GetAccountToken(ctx, storage.TokenKindRefresh, resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", refresh.AssociatedAccountID)
	assert.Equal(t, "basic", refresh.Source)
	assert.Equal(t, storage.AdditionalInformationNone, refresh.AdditionalInformation.Kind)
}

func TestAccessTokenProvider_Restrictions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		restrictions    *auth.TokenRestrictions
		wantPermissions []string
		wantScopes      []string
	}{
		{
			name:            "permissions intersected",
			restrictions:    &auth.TokenRestrictions{Permissions: []string{"users:read", "unknown"}, Scopes: []string{"profile"}},
			wantPermissions: []string{"users:read"},
			wantScopes:      []string{"profile"},
		},
		{
			name:            "empty permission list keeps all",
			restrictions:    &auth.TokenRestrictions{Scopes: []string{"email"}},
			wantPermissions: []string{"users:read", "users:write", "billing:read"},
			wantScopes:      []string{"email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			p := NewAccessTokenProvider(f.cfg, f.signer, f.store)
			ctx := t.Context()

			resp, err := p.Generate(ctx, testAccount(), tt.restrictions, NewOptions(WithClientID("42")))
			require.NoError(t, err)

			var claims AccessClaims
			require.NoError(t, f.signer.Parse(ctx, resp.Token, &claims))
			assert.Equal(t, tt.wantPermissions, claims.Permissions)
			assert.Equal(t, tt.wantScopes, claims.Scopes)
			assert.Equal(t, tt.restrictions, claims.Restrictions)
			assert.Equal(t, jwt.ClaimStrings{"42"}, claims.Audience)
			assert.Equal(t, "42", claims.ClientID)

			refresh, err := f.store.GetAccountToken(ctx, storage.TokenKindRefresh, resp.RefreshToken)
			require.NoError(t, err)
			require.Equal(t, storage.AdditionalInformationRestrictions, refresh.AdditionalInformation.Kind)
			assert.Equal(t, tt.restrictions, refresh.AdditionalInformation.Restrictions)
			assert.Equal(t, "42", refresh.ClientID)
		})
	}
}

func TestJWTSigner_RejectsForeignTokens(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	other := NewJWTSigner(keys.NewGeneratingProvider(keys.DefaultAlgorithm), testIssuer)
	shared := keys.NewGeneratingProvider(keys.DefaultAlgorithm)
	wrongIssuer := NewJWTSigner(shared, "https://evil.example.com")
	rightIssuer := NewJWTSigner(shared, testIssuer)

	token, err := NewAccessTokenProvider(f.cfg, other, f.store).AccessToken(ctx, testAccount(), nil, Options{})
	require.NoError(t, err)
	assert.Error(t, f.signer.Parse(ctx, token, &AccessClaims{}), "signed by an unknown key")

	cfg := f.cfg
	cfg.Issuer = "https://evil.example.com"
	token, err = NewAccessTokenProvider(cfg, wrongIssuer, f.store).AccessToken(ctx, testAccount(), nil, Options{})
	require.NoError(t, err)
	assert.Error(t, rightIssuer.Parse(ctx, token, &AccessClaims{}), "issuer mismatch")
	assert.NoError(t, wrongIssuer.Parse(ctx, token, &AccessClaims{}))

	assert.Error(t, f.signer.Parse(ctx, "not.a.jwt", &AccessClaims{}))
}

func TestOIDCProvider_Generate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	access := NewAccessTokenProvider(f.cfg, f.signer, f.store)
	p := NewOIDCProvider(access, NewIDTokenProvider(f.cfg, f.signer))
	ctx := t.Context()

	resp, err := p.Generate(ctx, testAccount(), nil, NewOptions(WithClientID("7")))
	require.NoError(t, err)

	assert.Equal(t, auth.TokenTypeOIDC, resp.Type)
	assert.Empty(t, resp.Token)
	require.NotNil(t, resp.OIDC)
	assert.Equal(t, resp.RefreshToken, resp.OIDC.RefreshToken)

	var idClaims IDClaims
	require.NoError(t, f.signer.Parse(ctx, resp.OIDC.IDToken, &idClaims))
	assert.Equal(t, "alice@example.com", idClaims.Email)
	assert.Equal(t, "alice@example.com", idClaims.PreferredUsername)
	assert.Equal(t, jwt.ClaimStrings{"7"}, idClaims.Audience)

	var accessClaims AccessClaims
	require.NoError(t, f.signer.Parse(ctx, resp.OIDC.AccessToken, &accessClaims))
	assert.Equal(t, "acc-1", accessClaims.Subject)
}

func TestAuthorizationCodeProvider_Generate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := NewAuthorizationCodeProvider(f.cfg, f.store)
	ctx := t.Context()

	info := storage.PKCEInformation("challenge", "S256")
	resp, err := p.Generate(ctx, testAccount(), info, NewOptions(WithClientID("7"), WithSource("basic")))
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeAuthorizationCode, resp.Type)
	assert.Equal(t, int64(DefaultAuthorizationCodeTTL.Seconds()), resp.ValidFor)

	code, err := f.store.GetAccountToken(ctx, storage.TokenKindAuthorizationCode, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, info, code.AdditionalInformation)
	assert.Equal(t, "7", code.ClientID)
	assert.WithinDuration(t, code.CreatedAt.Add(DefaultAuthorizationCodeTTL), code.ExpiresAt, time.Second)
}

func TestPasswordlessProvider_Generate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := NewPasswordlessProvider(Config{PasswordlessTTL: 2 * time.Minute}, f.store)
	ctx := t.Context()

	resp, err := p.Generate(ctx, testAccount(), Options{})
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypePasswordless, resp.Type)
	assert.Equal(t, int64(120), resp.ValidFor)

	_, err = f.store.GetAccountToken(ctx, storage.TokenKindPasswordless, resp.Token)
	require.NoError(t, err)
}

func TestSessionProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := NewSessionProvider(f.cfg, f.store)
	ctx := t.Context()

	tracking, err := p.Create(ctx, testAccount(), true, "ext-1")
	require.NoError(t, err)
	assert.True(t, tracking.ForTracking)
	assert.Equal(t, "ext-1", tracking.ExternalSessionID)
	assert.WithinDuration(t, tracking.CreatedAt.Add(DefaultTrackingSessionTTL), tracking.ExpiresAt, time.Second)

	resp, err := p.Generate(ctx, testAccount(), "")
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeSession, resp.Type)

	session, err := f.store.GetSessionByToken(ctx, resp.Token)
	require.NoError(t, err)
	assert.False(t, session.ForTracking)
	assert.NotEqual(t, tracking.ID, session.ID)
}

func TestAPIKeyProvider_Generate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := NewAPIKeyProvider(f.store)
	ctx := t.Context()

	app := &storage.Application{ID: "app-1", Domain: "main", Active: true}
	resp, err := p.Generate(ctx, app)
	require.NoError(t, err)

	assert.Equal(t, auth.EntityApplication, resp.EntityType)
	assert.Equal(t, "app-1", resp.EntityID)
	assert.Equal(t, auth.ResponseTypeAPIKey, resp.Type)
	assert.True(t, strings.HasPrefix(resp.Token, APIKeyPrefix))

	stored, err := f.store.GetAPIKeyByDigest(ctx, DigestAPIKey(resp.Token))
	require.NoError(t, err)
	assert.Equal(t, "app-1", stored.AppID)
	assert.NotContains(t, stored.KeyDigest, resp.Token)
}

func TestRandomHelpers(t *testing.T) {
	t.Parallel()

	assert.Len(t, RandomToken(), 26)
	assert.NotEqual(t, RandomToken(), RandomToken())
	assert.Len(t, NewRecordID(), 27)
	assert.Len(t, DigestAPIKey("ag_x"), 64)
	assert.Equal(t, DigestAPIKey("ag_x"), DigestAPIKey("ag_x"))
}

func TestOptionsFromRequest(t *testing.T) {
	t.Parallel()

	ctx := auth.WithRequestContext(t.Context(), auth.RequestContext{ClientID: "9"})
	assert.Equal(t, "9", OptionsFromRequest(ctx).ClientID)

	o := OptionsFromRequest(ctx, WithClientID("10"), WithSource("oidc"), WithTrackingSession("trk"))
	assert.Equal(t, Options{ClientID: "10", Source: "oidc", TrackingSession: "trk"}, o)

	assert.Empty(t, OptionsFromRequest(t.Context()).ClientID)
}
