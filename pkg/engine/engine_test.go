// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/oidc"
	"github.com/stacklok/authguard/pkg/auth/passwords"
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/config"
	autherrors "github.com/stacklok/authguard/pkg/errors"
	"github.com/stacklok/authguard/pkg/events"
)

const testSeed = `
accounts:
  - id: acc-1
    email: alice@example.com
    username: alice
    password: s3cret
    permissions: [read, write]
  - id: acc-2
    username: bob
    password: hunter2
    inactive: true
applications:
  - id: app-1
    name: billing
    parentAccountId: acc-1
clients:
  - id: 42
    name: portal
    clientType: SSO
    baseUrl: app.example.com
  - id: 7
    name: backend
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fastPasswords() *passwords.Manager {
	return passwords.NewManager(passwords.WithAlgorithm(passwords.Bcrypt), passwords.WithBcryptCost(bcrypt.MinCost))
}

func newTestEngine(t *testing.T, mutate func(*config.Config)) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Issuer = "https://auth.example.com"
	cfg.SeedFile = writeFile(t, "seed.yaml", testSeed)
	cfg.Events.Type = config.EventsNone
	if mutate != nil {
		mutate(cfg)
	}

	e, err := New(t.Context(), cfg, WithPasswords(fastPasswords()), WithVersion("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func TestNew_WiresEveryExchange(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	assert.Len(t, e.Exchanges(), 11)
	assert.True(t, e.Exchanger().SupportsExchange(auth.TokenTypeBasic, auth.TokenTypeAccess))
	assert.False(t, e.Exchanger().SupportsExchange(auth.TokenTypeAccess, auth.TokenTypeBasic))
	require.NoError(t, e.Health(t.Context()))

	jwks, err := e.JWKS(t.Context())
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)

	doc := e.Discovery()
	assert.Equal(t, "https://auth.example.com", doc.Issuer)
	assert.Equal(t, []string{"ES256"}, doc.IDTokenSigningAlgValuesSupported)
	assert.NotNil(t, e.Telemetry().MetricsHandler())
	assert.NotNil(t, e.AccessTokens())
}

func TestEngine_BasicFlowPublishes(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)

	var (
		mu       sync.Mutex
		received []events.Message
	)
	e.Events().Subscribe(events.ChannelAccounts, func(_ context.Context, _ string, msg events.Message) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
		return nil
	})

	resp, err := e.Exchanger().Exchange(t.Context(),
		auth.AuthRequest{Identifier: "alice", Password: "s3cret", Domain: "main"}, nil,
		auth.TokenTypeBasic, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeAccess, resp.Type)
	assert.Equal(t, "acc-1", resp.EntityID)
	assert.NotEmpty(t, resp.RefreshToken)

	_, err = e.Exchanger().Exchange(t.Context(),
		auth.AuthRequest{Identifier: "bob", Password: "hunter2", Domain: "main"}, nil,
		auth.TokenTypeBasic, auth.TokenTypeAccess)
	assert.True(t, autherrors.IsAccountDoesNotExist(err), "inactive account: %v", err)

	require.NoError(t, e.Close(t.Context()))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, events.EventAuthenticated, received[0].Event)
	assert.Equal(t, "acc-1", received[0].EntityID)
}

func TestEngine_OIDCFlow(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)

	code, err := e.OIDC().ProcessAuth(t.Context(), oidc.AuthorizationRequest{
		ResponseType: oidc.ResponseTypeCode,
		ClientID:     "42",
		RedirectURI:  "https://app.example.com/cb",
		Identifier:   "alice",
		Password:     "s3cret",
		Domain:       "main",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeAuthorizationCode, code.Type)

	tokens, err := e.OIDC().ProcessAuthCodeToken(t.Context(), auth.AuthRequest{Token: code.Token})
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeOIDC, tokens.Type)
	require.NotNil(t, tokens.OIDC)
	assert.NotEmpty(t, tokens.OIDC.IDToken)

	_, err = e.OIDC().ProcessAuthCodeToken(t.Context(), auth.AuthRequest{Token: code.Token})
	assert.True(t, autherrors.IsInvalidToken(err), "codes are single use: %v", err)

	refreshed, err := e.OIDC().ProcessRefreshToken(t.Context(), auth.AuthRequest{Token: tokens.OIDC.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeAccess, refreshed.Type)

	_, err = e.OIDC().ProcessAuth(t.Context(), oidc.AuthorizationRequest{
		ResponseType: oidc.ResponseTypeCode, ClientID: "7", RedirectURI: "https://app.example.com/cb",
		Identifier: "alice", Password: "s3cret",
	})
	assert.True(t, autherrors.IsClientNotPermitted(err), "standard client: %v", err)
}

func TestEngine_OIDCClientDomainBindsAccounts(t *testing.T) {
	t.Parallel()

	const tenants = `
accounts:
  - id: victim
    domain: tenant-b
    username: victim
    password: s3cret
clients:
  - id: 42
    name: portal
    clientType: SSO
    domain: tenant-a
    baseUrl: app.example.com
`
	e := newTestEngine(t, func(cfg *config.Config) {
		cfg.SeedFile = writeFile(t, "tenants.yaml", tenants)
	})

	req := oidc.AuthorizationRequest{
		ResponseType: oidc.ResponseTypeCode,
		ClientID:     "42",
		RedirectURI:  "https://app.example.com/cb",
		Identifier:   "victim",
		Password:     "s3cret",
	}

	_, err := e.OIDC().ProcessAuth(t.Context(), req)
	assert.True(t, autherrors.IsCredentialsDoNotExist(err), "looked up in the client's domain: %v", err)

	req.Domain = "tenant-b"
	_, err = e.OIDC().ProcessAuth(t.Context(), req)
	assert.True(t, autherrors.IsClientNotPermitted(err), "foreign domain: %v", err)
}

func TestEngine_APIKeys(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	resp, err := e.APIKeys().Generate(t.Context(), "app-1")
	require.NoError(t, err)

	app, err := e.APIKeys().Validate(t.Context(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "billing", app.Name)
}

func TestNew_SQLiteBackendsSurviveRestart(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "authguard.db")
	mutate := func(cfg *config.Config) {
		cfg.Storage.Principals = storage.TypeSQLite
		cfg.Storage.Tokens = storage.TypeSQLite
		cfg.Storage.SQLite.Path = dbPath
	}

	first, err := New(t.Context(), withSeed(t, mutate), WithPasswords(fastPasswords()))
	require.NoError(t, err)
	resp, err := first.Exchanger().Exchange(t.Context(),
		auth.AuthRequest{Identifier: "alice", Password: "s3cret", Domain: "main"}, nil,
		auth.TokenTypeBasic, auth.TokenTypeSession)
	require.NoError(t, err)
	require.NoError(t, first.Close(t.Context()))

	// Applying the same seed again must not fail.
	second, err := New(t.Context(), withSeed(t, mutate), WithPasswords(fastPasswords()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close(context.Background()) })

	access, err := second.Exchanger().Exchange(t.Context(), auth.AuthRequest{Token: resp.Token}, nil,
		auth.TokenTypeSession, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", access.EntityID)
}

func withSeed(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SeedFile = writeFile(t, "seed.yaml", testSeed)
	cfg.Events.Type = config.EventsNone
	cfg.Telemetry.Metrics.Enabled = false
	mutate(cfg)
	return cfg
}

func TestNew_RedisTokensAndEvents(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	e := newTestEngine(t, func(cfg *config.Config) {
		cfg.Storage.Tokens = storage.TypeRedis
		cfg.Storage.Redis.Addr = mr.Addr()
		cfg.Events.Type = config.EventsRedis
	})

	resp, err := e.Exchanger().Exchange(t.Context(),
		auth.AuthRequest{Identifier: "alice", Password: "s3cret", Domain: "main"}, nil,
		auth.TokenTypeBasic, auth.TokenTypePasswordless)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, mr.Keys(), "passwordless token and tracking session live in redis")

	access, err := e.Exchanger().Exchange(t.Context(), auth.AuthRequest{Token: resp.Token}, nil,
		auth.TokenTypePasswordless, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", access.EntityID)
}

func TestNew_FailuresReleaseResources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing seed",
			mutate:  func(cfg *config.Config) { cfg.SeedFile = filepath.Join(t.TempDir(), "absent.yaml") },
			wantErr: "failed to read seed file",
		},
		{
			name: "missing key dir",
			mutate: func(cfg *config.Config) {
				cfg.Keys.KeyDir = filepath.Join(t.TempDir(), "keys")
				cfg.Keys.SigningKeyFile = "signing.pem"
			},
			wantErr: "failed to load signing keys",
		},
		{
			name: "unreachable redis",
			mutate: func(cfg *config.Config) {
				cfg.Storage.Tokens = storage.TypeRedis
				cfg.Storage.Redis.Addr = "127.0.0.1:1"
				cfg.Storage.Redis.ConnectAttempts = 1
				cfg.Storage.Redis.DialTimeout = 100 * time.Millisecond
			},
			wantErr: "failed to open token storage",
		},
		{
			name:    "unknown events type",
			mutate:  func(cfg *config.Config) { cfg.Events.Type = "kafka" },
			wantErr: "unsupported events type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			tt.mutate(cfg)
			_, err := New(t.Context(), cfg, WithPasswords(fastPasswords()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
