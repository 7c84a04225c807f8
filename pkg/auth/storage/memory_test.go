// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Tests use the withStorage helper which calls t.Parallel() internally,
// making all subtests parallel despite not having explicit t.Parallel() calls.
//
//nolint:paralleltest // parallel execution handled by withStorage helper
package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authguard/pkg/auth"
)

func withStorage(t *testing.T, fn func(context.Context, *MemoryStorage)) {
	t.Helper()
	t.Parallel()
	storage := NewMemoryStorage()
	defer storage.Close()
	fn(t.Context(), storage)
}

func requireNotFoundError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound, "should match storage.ErrNotFound")
}

func testAccountToken(kind TokenKind, token string, now time.Time) *AccountToken {
	return &AccountToken{
		ID:                  "id-" + token,
		Kind:                kind,
		Token:               token,
		AssociatedAccountID: "acc-1",
		Domain:              "main",
		CreatedAt:           now,
		ExpiresAt:           now.Add(5 * time.Minute),
	}
}

func TestMemoryStorage_Accounts(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		account := &Account{ID: "acc-1", Domain: "main", Permissions: []string{"read"}, Active: true}
		require.NoError(t, s.CreateAccount(ctx, account))

		got, err := s.GetAccount(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, account, got)

		// Returned value is a defensive copy.
		got.Permissions[0] = "write"
		again, err := s.GetAccount(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"read"}, again.Permissions)

		err = s.CreateAccount(ctx, account)
		assert.ErrorIs(t, err, ErrAlreadyExists)

		_, err = s.GetAccount(ctx, "missing")
		requireNotFoundError(t, err)
	})
}

func TestMemoryStorage_CredentialsAreScopedByDomain(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		require.NoError(t, s.CreateCredential(ctx, &Credential{
			ID: "c1", AccountID: "acc-1", Domain: "main", Username: "alice", PasswordHash: "h",
		}))
		require.NoError(t, s.CreateCredential(ctx, &Credential{
			ID: "c2", AccountID: "acc-2", Domain: "other", Username: "alice", PasswordHash: "h",
		}))

		got, err := s.GetCredentialByUsername(ctx, "main", "alice")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", got.AccountID)

		got, err = s.GetCredentialByUsername(ctx, "other", "alice")
		require.NoError(t, err)
		assert.Equal(t, "acc-2", got.AccountID)

		_, err = s.GetCredentialByUsername(ctx, "main", "bob")
		requireNotFoundError(t, err)

		err = s.CreateCredential(ctx, &Credential{ID: "c3", Domain: "main", Username: "alice"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestMemoryStorage_ApplicationsAndClients(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		require.NoError(t, s.CreateApplication(ctx, &Application{ID: "app-1", Name: "billing", Active: true}))
		app, err := s.GetApplication(ctx, "app-1")
		require.NoError(t, err)
		assert.Equal(t, "billing", app.Name)

		_, err = s.GetApplication(ctx, "missing")
		requireNotFoundError(t, err)

		require.NoError(t, s.CreateClient(ctx, &Client{ID: 42, ClientType: ClientTypeSSO, BaseURL: "app.example.com"}))
		client, err := s.GetClient(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, ClientTypeSSO, client.ClientType)

		_, err = s.GetClient(ctx, 7)
		requireNotFoundError(t, err)
	})
}

func TestMemoryStorage_Sessions(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		now := time.Now()
		session := &Session{
			ID: "s1", Token: "tok", AccountID: "acc-1", ForTracking: true,
			CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		}
		require.NoError(t, s.CreateSession(ctx, session))

		got, err := s.GetSessionByToken(ctx, "tok")
		require.NoError(t, err)
		assert.True(t, got.ForTracking)
		assert.Equal(t, "acc-1", got.AccountID)

		require.NoError(t, s.DeleteSession(ctx, "tok"))
		_, err = s.GetSessionByToken(ctx, "tok")
		requireNotFoundError(t, err)

		// Deleting twice is fine.
		require.NoError(t, s.DeleteSession(ctx, "tok"))
	})
}

func TestMemoryStorage_RejectsInvalidRecords(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		now := time.Now()

		err := s.CreateSession(ctx, &Session{Token: "", CreatedAt: now, ExpiresAt: now.Add(time.Minute)})
		assert.Error(t, err)

		err = s.CreateSession(ctx, &Session{Token: "t", CreatedAt: now, ExpiresAt: now})
		assert.Error(t, err, "expiry must be strictly after creation")

		bad := testAccountToken(TokenKindRefresh, "r", now)
		bad.ExpiresAt = now.Add(-time.Second)
		assert.Error(t, s.CreateAccountToken(ctx, bad))
	})
}

func TestMemoryStorage_AccountTokensArePartitionedByKind(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		now := time.Now()
		code := testAccountToken(TokenKindAuthorizationCode, "same", now)
		code.AdditionalInformation = RestrictionsInformation(&auth.TokenRestrictions{Permissions: []string{"read"}})
		require.NoError(t, s.CreateAccountToken(ctx, code))
		require.NoError(t, s.CreateAccountToken(ctx, testAccountToken(TokenKindRefresh, "same", now)))

		got, err := s.GetAccountToken(ctx, TokenKindAuthorizationCode, "same")
		require.NoError(t, err)
		assert.Equal(t, AdditionalInformationRestrictions, got.AdditionalInformation.Kind)
		assert.Equal(t, []string{"read"}, got.AdditionalInformation.Restrictions.Permissions)

		got.AdditionalInformation.Restrictions.Permissions[0] = "mutated"
		again, err := s.GetAccountToken(ctx, TokenKindAuthorizationCode, "same")
		require.NoError(t, err)
		assert.Equal(t, []string{"read"}, again.AdditionalInformation.Restrictions.Permissions)

		require.NoError(t, s.DeleteAccountToken(ctx, TokenKindAuthorizationCode, "same"))
		_, err = s.GetAccountToken(ctx, TokenKindAuthorizationCode, "same")
		requireNotFoundError(t, err)
		requireNotFoundError(t, s.DeleteAccountToken(ctx, TokenKindAuthorizationCode, "same"))

		_, err = s.GetAccountToken(ctx, TokenKindRefresh, "same")
		require.NoError(t, err, "deleting one kind must not touch another")

		err = s.CreateAccountToken(ctx, testAccountToken(TokenKindRefresh, "same", now))
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestMemoryStorage_ExpiredRecordsAreStillReadable(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		past := time.Now().Add(-time.Hour)
		tok := testAccountToken(TokenKindAuthorizationCode, "old", past)
		require.NoError(t, s.CreateAccountToken(ctx, tok))

		got, err := s.GetAccountToken(ctx, TokenKindAuthorizationCode, "old")
		require.NoError(t, err)
		assert.True(t, got.Expired(time.Now()))
	})
}

func TestMemoryStorage_APIKeys(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		require.NoError(t, s.CreateAPIKey(ctx, &APIKey{ID: "k1", KeyDigest: "d1", AppID: "app-1"}))

		got, err := s.GetAPIKeyByDigest(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, "app-1", got.AppID)

		_, err = s.GetAPIKeyByDigest(ctx, "d2")
		requireNotFoundError(t, err)

		assert.ErrorIs(t, s.CreateAPIKey(ctx, &APIKey{KeyDigest: "d1"}), ErrAlreadyExists)
		assert.Error(t, s.CreateAPIKey(ctx, &APIKey{}))
	})
}

func TestMemoryStorage_CleanupHonoursRetention(t *testing.T) {
	t.Parallel()

	now := time.Now()
	clock := now
	s := NewMemoryStorage(
		WithCleanupInterval(time.Hour),
		WithExpiredRetention(10*time.Minute),
		WithClock(func() time.Time { return clock }),
	)
	defer s.Close()
	ctx := t.Context()

	// Expired 5 minutes ago: inside retention.
	recent := testAccountToken(TokenKindRefresh, "recent", now.Add(-10*time.Minute))
	require.NoError(t, s.CreateAccountToken(ctx, recent))

	// Expired 20 minutes ago: outside retention.
	stale := testAccountToken(TokenKindRefresh, "stale", now.Add(-25*time.Minute))
	require.NoError(t, s.CreateAccountToken(ctx, stale))

	require.NoError(t, s.CreateSession(ctx, &Session{
		Token: "old-session", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	s.cleanupExpired()

	_, err := s.GetAccountToken(ctx, TokenKindRefresh, "recent")
	require.NoError(t, err)
	_, err = s.GetAccountToken(ctx, TokenKindRefresh, "stale")
	requireNotFoundError(t, err)
	_, err = s.GetSessionByToken(ctx, "old-session")
	requireNotFoundError(t, err)

	stats := s.Stats()
	assert.Equal(t, 1, stats.AccountTokens)
	assert.Equal(t, 0, stats.Sessions)
}

func TestMemoryStorage_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStorage()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, s.Health(t.Context()))
}

func TestMemoryStorage_ConcurrentAccess(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		now := time.Now()
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tok := testAccountToken(TokenKindAuthorizationCode, fmt.Sprintf("tok-%d", i), now)
				_ = s.CreateAccountToken(ctx, tok)
				_, _ = s.GetAccountToken(ctx, tok.Kind, tok.Token)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 50, s.Stats().AccountTokens)
	})
}

func TestComposite_SharedBackendClosedOnce(t *testing.T) {
	t.Parallel()

	s := NewMemoryStorage()
	c := NewComposite(s, s)
	require.NoError(t, c.Health(t.Context()))
	require.NoError(t, c.Close())
}
