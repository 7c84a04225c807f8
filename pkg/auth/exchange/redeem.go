// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	"github.com/stacklok/authguard/pkg/auth/verifier"
	autherrors "github.com/stacklok/authguard/pkg/errors"
	"github.com/stacklok/authguard/pkg/logger"
)

// redemption is a verified stored token together with its account and the
// restrictions the next token must carry.
type redemption struct {
	record       *storage.AccountToken
	account      *storage.Account
	restrictions *auth.TokenRestrictions
}

// redeemer verifies a stored account token of one kind, resolves what it
// grants and claims it. A claimed token is gone even if minting then fails.
type redeemer struct {
	tokenVerifier *verifier.AccountTokenVerifier
	accounts      storage.AccountStore
	// narrow applies the caller's restrictions on top of the stored ones.
	narrow bool
}

func (r redeemer) redeem(ctx context.Context, req auth.AuthRequest) (*redemption, error) {
	record, err := r.tokenVerifier.Verify(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	restrictions, err := restrictionsOf(record, req)
	if err != nil {
		return nil, err
	}
	if r.narrow {
		narrowed, ok := restrictions.Narrow(req.Restrictions)
		if !ok {
			return nil, autherrors.NewGenericAuthFailureError(
				fmt.Sprintf("requested restrictions are outside what the %s grants", record.Kind))
		}
		restrictions = narrowed
	}

	account, err := resolveAccount(ctx, r.accounts, record.AssociatedAccountID)
	if err != nil {
		return nil, err
	}

	// Every check passed; only one concurrent redemption gets past here.
	if err := r.tokenVerifier.Claim(ctx, record); err != nil {
		return nil, err
	}
	return &redemption{record: record, account: account, restrictions: restrictions}, nil
}

// restrictionsOf decides what record grants from its additional information.
func restrictionsOf(record *storage.AccountToken, req auth.AuthRequest) (*auth.TokenRestrictions, error) {
	info := record.AdditionalInformation
	switch info.Kind {
	case storage.AdditionalInformationNone:
		return nil, nil
	case storage.AdditionalInformationRestrictions:
		if info.Restrictions == nil {
			return nil, invalidAdditionalInformation(record)
		}
		return info.Restrictions, nil
	case storage.AdditionalInformationPKCE:
		if err := verifier.CheckPKCE(record, req.ExtraParameter(auth.ParamCodeVerifier)); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, invalidAdditionalInformation(record)
	}
}

func invalidAdditionalInformation(record *storage.AccountToken) error {
	logger.Errorw("stored token carries additional information of an unknown shape",
		"kind", record.Kind,
		"id", record.ID,
		"account_id", record.AssociatedAccountID,
		"additional_information_kind", record.AdditionalInformation.Kind)
	return autherrors.NewInvalidAdditionalInformationTypeError(
		fmt.Sprintf("found additional information of wrong type %q", record.AdditionalInformation.Kind),
		record.AssociatedAccountID)
}

func resolveAccount(ctx context.Context, accounts storage.AccountStore, id string) (*storage.Account, error) {
	account, err := accounts.GetAccount(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, autherrors.NewAccountDoesNotExistError(fmt.Sprintf("account %s does not exist", id), id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if !account.Active {
		return nil, autherrors.NewAccountDoesNotExistError(fmt.Sprintf("account %s is not active", id), id)
	}
	return account, nil
}

// redemptionOptions carries the client and tracking session of the redeemed
// record over to what is minted from it.
func redemptionOptions(record *storage.AccountToken, source string) tokens.Options {
	return tokens.NewOptions(
		tokens.WithSource(source),
		tokens.WithClientID(record.ClientID),
		tokens.WithTrackingSession(record.TrackingSession),
	)
}

// AuthorizationCodeToAccessToken redeems an authorization code for an
// access and refresh token pair. Codes are single use.
type AuthorizationCodeToAccessToken struct {
	pair
	redeemer
	access *tokens.AccessTokenProvider
}

// NewAuthorizationCodeToAccessToken creates the authorizationCode→accessToken handler.
func NewAuthorizationCodeToAccessToken(
	codes *verifier.AccountTokenVerifier, accounts storage.AccountStore, access *tokens.AccessTokenProvider,
) *AuthorizationCodeToAccessToken {
	return &AuthorizationCodeToAccessToken{
		pair:     pair{auth.TokenTypeAuthorizationCode, auth.TokenTypeAccess},
		redeemer: redeemer{tokenVerifier: codes, accounts: accounts},
		access:   access,
	}
}

// Exchange implements Handler.
func (h *AuthorizationCodeToAccessToken) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	r, err := h.redeem(ctx, req)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	resp, err := h.access.Generate(ctx, r.account, r.restrictions, redemptionOptions(r.record, h.from))
	if err != nil {
		return auth.AuthResponse{}, err
	}
	return resp, nil
}

// AuthorizationCodeToOIDC redeems an authorization code for an OIDC token
// triple. Codes are single use.
type AuthorizationCodeToOIDC struct {
	pair
	redeemer
	oidc *tokens.OIDCProvider
}

// NewAuthorizationCodeToOIDC creates the authorizationCode→oidc handler.
func NewAuthorizationCodeToOIDC(
	codes *verifier.AccountTokenVerifier, accounts storage.AccountStore, oidc *tokens.OIDCProvider,
) *AuthorizationCodeToOIDC {
	return &AuthorizationCodeToOIDC{
		pair:     pair{auth.TokenTypeAuthorizationCode, auth.TokenTypeOIDC},
		redeemer: redeemer{tokenVerifier: codes, accounts: accounts},
		oidc:     oidc,
	}
}

// Exchange implements Handler.
func (h *AuthorizationCodeToOIDC) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	r, err := h.redeem(ctx, req)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	resp, err := h.oidc.Generate(ctx, r.account, r.restrictions, redemptionOptions(r.record, h.from))
	if err != nil {
		return auth.AuthResponse{}, err
	}
	return resp, nil
}

// RefreshToAccessToken rotates a refresh token: a new pair is minted under
// the stored restrictions, narrowed further by any the caller supplies, and
// the redeemed token is deleted.
type RefreshToAccessToken struct {
	pair
	redeemer
	access *tokens.AccessTokenProvider
}

// NewRefreshToAccessToken creates the refresh→accessToken handler.
func NewRefreshToAccessToken(
	refresh *verifier.AccountTokenVerifier, accounts storage.AccountStore, access *tokens.AccessTokenProvider,
) *RefreshToAccessToken {
	return &RefreshToAccessToken{
		pair:     pair{auth.TokenTypeRefresh, auth.TokenTypeAccess},
		redeemer: redeemer{tokenVerifier: refresh, accounts: accounts, narrow: true},
		access:   access,
	}
}

// Exchange implements Handler.
func (h *RefreshToAccessToken) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	r, err := h.redeem(ctx, req)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	source := r.record.Source
	if source == "" {
		source = h.from
	}
	resp, err := h.access.Generate(ctx, r.account, r.restrictions, redemptionOptions(r.record, source))
	if err != nil {
		return auth.AuthResponse{}, err
	}
	return resp, nil
}

// PasswordlessToAccessToken redeems a passwordless token for an access and
// refresh token pair. Passwordless tokens are single use.
type PasswordlessToAccessToken struct {
	pair
	redeemer
	access *tokens.AccessTokenProvider
}

// NewPasswordlessToAccessToken creates the passwordless→accessToken handler.
func NewPasswordlessToAccessToken(
	passwordless *verifier.AccountTokenVerifier, accounts storage.AccountStore, access *tokens.AccessTokenProvider,
) *PasswordlessToAccessToken {
	return &PasswordlessToAccessToken{
		pair:     pair{auth.TokenTypePasswordless, auth.TokenTypeAccess},
		redeemer: redeemer{tokenVerifier: passwordless, accounts: accounts},
		access:   access,
	}
}

// Exchange implements Handler.
func (h *PasswordlessToAccessToken) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	r, err := h.redeem(ctx, req)
	if err != nil {
		return auth.AuthResponse{}, err
	}

	resp, err := h.access.Generate(ctx, r.account, req.Restrictions, redemptionOptions(r.record, h.from))
	if err != nil {
		return auth.AuthResponse{}, err
	}
	return resp, nil
}
