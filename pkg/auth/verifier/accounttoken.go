// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/async"
	"github.com/stacklok/authguard/pkg/auth/pkce"
	"github.com/stacklok/authguard/pkg/auth/storage"
	autherrors "github.com/stacklok/authguard/pkg/errors"
	"github.com/stacklok/authguard/pkg/logger"
)

// AccountTokenVerifier validates stored account tokens of one kind.
type AccountTokenVerifier struct {
	store         storage.AccountTokenStore
	kind          storage.TokenKind
	deleteExpired bool
	now           func() time.Time
}

// NewAuthorizationCodeVerifier creates a verifier for authorization codes.
func NewAuthorizationCodeVerifier(store storage.AccountTokenStore) *AccountTokenVerifier {
	return &AccountTokenVerifier{store: store, kind: storage.TokenKindAuthorizationCode, now: time.Now}
}

// NewRefreshTokenVerifier creates a verifier for refresh tokens. Expired
// refresh tokens are deleted when presented.
func NewRefreshTokenVerifier(store storage.AccountTokenStore) *AccountTokenVerifier {
	return &AccountTokenVerifier{store: store, kind: storage.TokenKindRefresh, deleteExpired: true, now: time.Now}
}

// NewPasswordlessVerifier creates a verifier for passwordless tokens.
func NewPasswordlessVerifier(store storage.AccountTokenStore) *AccountTokenVerifier {
	return &AccountTokenVerifier{store: store, kind: storage.TokenKindPasswordless, now: time.Now}
}

// Kind returns the token kind this verifier checks.
func (v *AccountTokenVerifier) Kind() storage.TokenKind {
	return v.kind
}

// Verify returns the full stored record for token so that the caller can
// inspect its additional information.
func (v *AccountTokenVerifier) Verify(ctx context.Context, token string) (*storage.AccountToken, error) {
	if token == "" {
		return nil, autherrors.NewInvalidTokenError(fmt.Sprintf("no %s supplied", v.kind))
	}

	record, err := v.store.GetAccountToken(ctx, v.kind, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, autherrors.NewInvalidTokenError(fmt.Sprintf("%s does not exist", v.kind))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", v.kind, err)
	}

	if record.Expired(v.now()) {
		if v.deleteExpired {
			v.Consume(ctx, record)
		}
		return nil, autherrors.NewExpiredTokenError(fmt.Sprintf("%s has expired", v.kind),
			auth.EntityAccount, record.AssociatedAccountID)
	}
	return record, nil
}

// VerifyAsync is the non-blocking form of Verify.
func (v *AccountTokenVerifier) VerifyAsync(ctx context.Context, token string) *async.Future[*storage.AccountToken] {
	return async.Go(ctx, func(ctx context.Context) (*storage.AccountToken, error) {
		return v.Verify(ctx, token)
	})
}

// Claim deletes record so that it cannot be redeemed again. When a
// concurrent redemption claimed it first the token is reported invalid.
func (v *AccountTokenVerifier) Claim(ctx context.Context, record *storage.AccountToken) error {
	err := v.store.DeleteAccountToken(ctx, v.kind, record.Token)
	if errors.Is(err, storage.ErrNotFound) {
		return autherrors.NewInvalidTokenError(fmt.Sprintf("%s was already redeemed", v.kind))
	}
	if err != nil {
		return fmt.Errorf("failed to claim %s: %w", v.kind, err)
	}
	return nil
}

// Consume deletes record. A failed delete is logged and otherwise ignored:
// the record still expires on its own.
func (v *AccountTokenVerifier) Consume(ctx context.Context, record *storage.AccountToken) {
	err := v.store.DeleteAccountToken(ctx, v.kind, record.Token)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warnw("failed to delete account token",
			"kind", v.kind,
			"id", record.ID,
			"account_id", record.AssociatedAccountID,
			"error", err)
	}
}

// CheckPKCE matches the code verifier presented at redemption against the
// challenge stored on record. Records without a PKCE challenge always pass.
func CheckPKCE(record *storage.AccountToken, codeVerifier string) error {
	info := record.AdditionalInformation
	if info.Kind != storage.AdditionalInformationPKCE {
		return nil
	}
	if info.PKCE == nil {
		return autherrors.NewInvalidAdditionalInformationTypeError(
			"pkce information is empty", record.AssociatedAccountID)
	}
	if codeVerifier == "" {
		return autherrors.NewGenericAuthFailureError("code_verifier is missing")
	}
	if !pkce.Verify(codeVerifier, info.PKCE.Challenge, info.PKCE.Method) {
		return autherrors.NewGenericAuthFailureError("code_verifier does not match code_challenge")
	}
	return nil
}
