// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/storage"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := Open(t.Context(), filepath.Join(t.TempDir(), "authguard.db"))
	require.NoError(t, err)
	s := NewStore(db, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_AppliesMigrations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(t.Context(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.NotEmpty(t, db.Applied)
	assert.Equal(t, path, db.Path())

	version, err := SchemaVersion(t.Context(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(t.Context(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(t.Context(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	assert.Empty(t, db.Applied, "no migrations should be pending on reopen")
}

func TestOpen_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := Open(t.Context(), "")
	assert.Error(t, err)
}

func TestStore_Principals(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	account := &storage.Account{
		ID: "acc-1", Domain: "main", Email: "a@example.com",
		Roles: []string{"admin"}, Permissions: []string{"read", "write"}, Active: true,
	}
	require.NoError(t, s.CreateAccount(ctx, account))
	assert.ErrorIs(t, s.CreateAccount(ctx, account), storage.ErrAlreadyExists)

	gotAccount, err := s.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, account.Permissions, gotAccount.Permissions)
	assert.Equal(t, account.Roles, gotAccount.Roles)
	assert.True(t, gotAccount.Active)

	_, err = s.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.CreateCredential(ctx, &storage.Credential{
		ID: "c1", AccountID: "acc-1", Domain: "main", Username: "alice", PasswordHash: "hash",
	}))
	err = s.CreateCredential(ctx, &storage.Credential{ID: "c2", Domain: "main", Username: "alice", PasswordHash: "x"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	cred, err := s.GetCredentialByUsername(ctx, "main", "alice")
	require.NoError(t, err)
	assert.Equal(t, "hash", cred.PasswordHash)

	_, err = s.GetCredentialByUsername(ctx, "other", "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.CreateApplication(ctx, &storage.Application{
		ID: "app-1", Name: "billing", ParentAccountID: "acc-1", Active: true,
	}))
	app, err := s.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "billing", app.Name)
	assert.Nil(t, app.Permissions)

	require.NoError(t, s.CreateClient(ctx, &storage.Client{
		ID: 7, Name: "portal", ClientType: storage.ClientTypeSSO, BaseURL: "portal.example.com",
	}))
	client, err := s.GetClient(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, storage.ClientTypeSSO, client.ClientType)
	assert.Equal(t, "portal.example.com", client.BaseURL)

	_, err = s.GetClient(ctx, 8)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_SessionsAndTokens(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now()

	session := &storage.Session{
		ID: "s1", Token: "session-token", AccountID: "acc-1", ForTracking: true,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, session))
	assert.ErrorIs(t, s.CreateSession(ctx, session), storage.ErrAlreadyExists)

	gotSession, err := s.GetSessionByToken(ctx, "session-token")
	require.NoError(t, err)
	assert.True(t, gotSession.ForTracking)
	assert.Equal(t, session.ExpiresAt.UnixMilli(), gotSession.ExpiresAt.UnixMilli())

	require.NoError(t, s.DeleteSession(ctx, "session-token"))
	_, err = s.GetSessionByToken(ctx, "session-token")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	tok := &storage.AccountToken{
		ID: "t1", Kind: storage.TokenKindRefresh, Token: "refresh", AssociatedAccountID: "acc-1",
		ClientID: "7", Source: "portal", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	tok.AdditionalInformation = storage.RestrictionsInformation(&auth.TokenRestrictions{Scopes: []string{"profile"}})
	require.NoError(t, s.CreateAccountToken(ctx, tok))
	assert.ErrorIs(t, s.CreateAccountToken(ctx, tok), storage.ErrAlreadyExists)

	got, err := s.GetAccountToken(ctx, storage.TokenKindRefresh, "refresh")
	require.NoError(t, err)
	assert.Equal(t, "7", got.ClientID)
	assert.Equal(t, "portal", got.Source)
	require.Equal(t, storage.AdditionalInformationRestrictions, got.AdditionalInformation.Kind)
	assert.Equal(t, []string{"profile"}, got.AdditionalInformation.Restrictions.Scopes)

	_, err = s.GetAccountToken(ctx, storage.TokenKindAuthorizationCode, "refresh")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.DeleteAccountToken(ctx, storage.TokenKindRefresh, "refresh"))
	_, err = s.GetAccountToken(ctx, storage.TokenKindRefresh, "refresh")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteAccountToken(ctx, storage.TokenKindRefresh, "refresh"), storage.ErrNotFound,
		"only the first delete claims the token")

	assert.Error(t, s.CreateAccountToken(ctx, &storage.AccountToken{
		Kind: storage.TokenKindRefresh, Token: "bad", CreatedAt: now, ExpiresAt: now,
	}))
}

func TestStore_APIKeys(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateAPIKey(ctx, &storage.APIKey{ID: "k1", KeyDigest: "digest", AppID: "app-1"}))
	assert.ErrorIs(t, s.CreateAPIKey(ctx, &storage.APIKey{KeyDigest: "digest"}), storage.ErrAlreadyExists)

	got, err := s.GetAPIKeyByDigest(ctx, "digest")
	require.NoError(t, err)
	assert.Equal(t, "app-1", got.AppID)

	_, err = s.GetAPIKeyByDigest(ctx, "other")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_PurgeExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := newTestStore(t,
		WithExpiredRetention(10*time.Minute),
		WithCleanupInterval(time.Hour),
		WithClock(func() time.Time { return now }),
	)
	ctx := t.Context()

	mk := func(token string, expiredAgo time.Duration) *storage.AccountToken {
		return &storage.AccountToken{
			Kind: storage.TokenKindPasswordless, Token: token, AssociatedAccountID: "acc-1",
			CreatedAt: now.Add(-expiredAgo - time.Minute), ExpiresAt: now.Add(-expiredAgo),
		}
	}
	require.NoError(t, s.CreateAccountToken(ctx, mk("recent", 5*time.Minute)))
	require.NoError(t, s.CreateAccountToken(ctx, mk("stale", 30*time.Minute)))

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetAccountToken(ctx, storage.TokenKindPasswordless, "recent")
	require.NoError(t, err)
	assert.True(t, got.Expired(now))

	_, err = s.GetAccountToken(ctx, storage.TokenKindPasswordless, "stale")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_CloseTwice(t *testing.T) {
	t.Parallel()

	db, err := Open(t.Context(), filepath.Join(t.TempDir(), "close.db"))
	require.NoError(t, err)
	s := NewStore(db)
	require.NoError(t, s.Health(t.Context()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
