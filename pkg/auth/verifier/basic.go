// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package verifier validates presented credentials against the stores and
// resolves the principal behind them. Every failure a caller can act on is
// returned as a typed *errors.Error; store faults are returned wrapped and
// classified as internal by the exchange dispatcher.
package verifier

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/async"
	"github.com/stacklok/authguard/pkg/auth/passwords"
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	autherrors "github.com/stacklok/authguard/pkg/errors"
)

// BasicScheme is the authorization scheme accepted by BasicVerifier.
const BasicScheme = "Basic"

// BasicVerifier authenticates "Basic" credentials.
type BasicVerifier struct {
	credentials storage.CredentialStore
	accounts    storage.AccountStore
	passwords   passwords.Verifier
	sessions    *tokens.SessionProvider
}

// NewBasicVerifier creates a BasicVerifier. sessions may be nil when
// AuthenticateWithSession is never called.
func NewBasicVerifier(
	credentials storage.CredentialStore,
	accounts storage.AccountStore,
	pw passwords.Verifier,
	sessions *tokens.SessionProvider,
) *BasicVerifier {
	return &BasicVerifier{credentials: credentials, accounts: accounts, passwords: pw, sessions: sessions}
}

// Authenticate verifies an identifier and secret and returns the account.
// The pair is read from req.Token when set, otherwise from Identifier and
// Password.
func (v *BasicVerifier) Authenticate(ctx context.Context, req auth.AuthRequest) (*storage.Account, error) {
	identifier, password, err := credentialsFrom(req, 2)
	if err != nil {
		return nil, err
	}

	credential, err := v.credential(ctx, req.Domain, identifier)
	if err != nil {
		return nil, err
	}

	ok, err := v.passwords.Verify(password, credential.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, autherrors.NewPasswordsDoNotMatchError("passwords do not match")
	}

	return v.account(ctx, credential.AccountID)
}

// AuthenticateAsync is the non-blocking form of Authenticate.
func (v *BasicVerifier) AuthenticateAsync(ctx context.Context, req auth.AuthRequest) *async.Future[*storage.Account] {
	return async.Go(ctx, func(ctx context.Context) (*storage.Account, error) {
		return v.Authenticate(ctx, req)
	})
}

// Lookup resolves the account behind an identifier without checking any
// secret. The encoded form must carry the identifier alone. No registered
// exchange uses it: each of them mints something redeemable, which must not
// follow from an identifier alone.
func (v *BasicVerifier) Lookup(ctx context.Context, req auth.AuthRequest) (*storage.Account, error) {
	identifier, _, err := credentialsFrom(req, 1)
	if err != nil {
		return nil, err
	}

	credential, err := v.credential(ctx, req.Domain, identifier)
	if err != nil {
		return nil, err
	}
	return v.account(ctx, credential.AccountID)
}

// AuthenticateWithSession authenticates like Authenticate and then opens a
// tracking session for the account, used to correlate whatever is minted next.
func (v *BasicVerifier) AuthenticateWithSession(
	ctx context.Context, req auth.AuthRequest,
) (*storage.Account, *storage.Session, error) {
	if v.sessions == nil {
		return nil, nil, errors.New("basic verifier has no session provider")
	}

	account, err := v.Authenticate(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	session, err := v.sessions.Create(ctx, account, true, req.ExternalSessionID)
	if err != nil {
		return nil, nil, err
	}
	return account, session, nil
}

func (v *BasicVerifier) credential(ctx context.Context, domain, username string) (*storage.Credential, error) {
	credential, err := v.credentials.GetCredentialByUsername(ctx, domain, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, autherrors.NewCredentialsDoNotExistError("credentials do not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up credentials: %w", err)
	}
	return credential, nil
}

func (v *BasicVerifier) account(ctx context.Context, accountID string) (*storage.Account, error) {
	account, err := v.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, autherrors.NewAccountDoesNotExistError("account does not exist", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if !account.Active {
		return nil, autherrors.NewAccountDoesNotExistError("account is not active", accountID)
	}
	return account, nil
}

// credentialsFrom extracts the identifier and, when parts is 2, the secret.
func credentialsFrom(req auth.AuthRequest, parts int) (string, string, error) {
	if req.Token == "" {
		if req.Identifier == "" {
			return "", "", autherrors.NewInvalidAuthorizationFormatError("no credentials supplied", nil)
		}
		return req.Identifier, req.Password, nil
	}

	decoded, err := DecodeBasic(req.Token, parts)
	if err != nil {
		return "", "", err
	}
	if parts == 1 {
		return decoded[0], "", nil
	}
	return decoded[0], decoded[1], nil
}

// DecodeBasic parses a "Basic <base64>" header value and splits the payload
// on ':'. Trailing empty pieces are dropped, so "alice:" is the identifier
// alone. The payload must split into exactly parts pieces.
func DecodeBasic(header string, parts int) ([]string, error) {
	scheme, encoded, found := strings.Cut(header, " ")
	if !found {
		return nil, autherrors.NewInvalidAuthorizationFormatError("authorization header has no scheme separator", nil)
	}
	if scheme != BasicScheme {
		return nil, autherrors.NewUnsupportedSchemeError(fmt.Sprintf("unsupported authorization scheme %q", scheme))
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, autherrors.NewInvalidAuthorizationFormatError("failed to decode basic credentials", err)
	}

	pieces := splitCredentials(string(raw))
	if len(pieces) != parts {
		return nil, autherrors.NewInvalidAuthorizationFormatError(
			fmt.Sprintf("expected %d credential parts, got %d", parts, len(pieces)), nil)
	}
	return pieces, nil
}

func splitCredentials(payload string) []string {
	if !strings.Contains(payload, ":") {
		return []string{payload}
	}
	pieces := strings.Split(payload, ":")
	for len(pieces) > 0 && pieces[len(pieces)-1] == "" {
		pieces = pieces[:len(pieces)-1]
	}
	return pieces
}

// EncodeBasic builds a "Basic" header value from parts joined with ':'.
func EncodeBasic(parts ...string) string {
	return BasicScheme + " " + base64.StdEncoding.EncodeToString([]byte(strings.Join(parts, ":")))
}
