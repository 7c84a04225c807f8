// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the store contracts consumed by the token exchange
// engine together with in-memory and Redis implementations.
//
// Lookups that find nothing return ErrNotFound. Records are returned as
// defensive copies; callers may mutate them freely.
package storage

//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks -source=types.go AccountStore,CredentialStore,ApplicationStore,ClientStore,SessionStore,AccountTokenStore,APIKeyStore

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/stacklok/authguard/pkg/auth"
)

// Account is a principal that can authenticate with credentials.
type Account struct {
	ID          string
	Domain      string
	Email       string
	Roles       []string
	Permissions []string
	Active      bool
	CreatedAt   time.Time
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	out := *a
	out.Roles = slices.Clone(a.Roles)
	out.Permissions = slices.Clone(a.Permissions)
	return &out
}

// Credential binds a username within a domain to an account and a password hash.
type Credential struct {
	ID           string
	AccountID    string
	Domain       string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Application is a non-human principal owned by an account.
type Application struct {
	ID              string
	Domain          string
	Name            string
	ParentAccountID string
	Roles           []string
	Permissions     []string
	Active          bool
	CreatedAt       time.Time
}

// Clone returns a deep copy of the application.
func (a *Application) Clone() *Application {
	out := *a
	out.Roles = slices.Clone(a.Roles)
	out.Permissions = slices.Clone(a.Permissions)
	return &out
}

// ClientType distinguishes OAuth clients.
type ClientType string

const (
	// ClientTypeStandard clients may not initiate the OIDC flow.
	ClientTypeStandard ClientType = "STANDARD"
	// ClientTypeSSO clients may initiate the OIDC flow.
	ClientTypeSSO ClientType = "SSO"
)

// Client is an OAuth relying party. It is read-only from the engine's point of view.
type Client struct {
	ID         int64
	Name       string
	ClientType ClientType
	Domain     string
	// BaseURL is the host that redirect URIs must point at, e.g. "app.example.com".
	BaseURL   string
	AccountID string
	CreatedAt time.Time
}

// Session is an authenticated session. Tracking sessions exist for audit
// correlation only and never authenticate a request.
type Session struct {
	ID                string
	Token             string
	AccountID         string
	Domain            string
	ForTracking       bool
	ExternalSessionID string
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// TokenKind partitions the account token store.
type TokenKind string

const (
	// TokenKindAuthorizationCode marks OAuth authorization codes.
	TokenKindAuthorizationCode TokenKind = "authorization_code"
	// TokenKindRefresh marks refresh tokens.
	TokenKindRefresh TokenKind = "refresh_token"
	// TokenKindPasswordless marks passwordless login tokens.
	TokenKindPasswordless TokenKind = "passwordless"
)

// AdditionalInformationKind tags the variant held by AdditionalInformation.
type AdditionalInformationKind string

const (
	// AdditionalInformationNone means the record carries no extra data.
	AdditionalInformationNone AdditionalInformationKind = ""
	// AdditionalInformationRestrictions means the record carries token restrictions.
	AdditionalInformationRestrictions AdditionalInformationKind = "restrictions"
	// AdditionalInformationPKCE means the record carries a PKCE challenge.
	AdditionalInformationPKCE AdditionalInformationKind = "pkce"
)

// PKCEChallenge is the client-supplied half of a PKCE exchange.
type PKCEChallenge struct {
	Challenge string `json:"challenge"`
	Method    string `json:"method"`
}

// AdditionalInformation is a closed variant: None, Restrictions or PKCE.
// The Kind is decided when the record is written and read back verbatim;
// consumers switch on Kind and treat anything else as corrupt data.
type AdditionalInformation struct {
	Kind         AdditionalInformationKind `json:"kind,omitempty"`
	Restrictions *auth.TokenRestrictions   `json:"restrictions,omitempty"`
	PKCE         *PKCEChallenge            `json:"pkce,omitempty"`
}

// NoAdditionalInformation returns the empty variant.
func NoAdditionalInformation() AdditionalInformation {
	return AdditionalInformation{}
}

// RestrictionsInformation returns the restrictions variant.
func RestrictionsInformation(r *auth.TokenRestrictions) AdditionalInformation {
	return AdditionalInformation{Kind: AdditionalInformationRestrictions, Restrictions: r.Clone()}
}

// PKCEInformation returns the PKCE variant.
func PKCEInformation(challenge, method string) AdditionalInformation {
	return AdditionalInformation{
		Kind: AdditionalInformationPKCE,
		PKCE: &PKCEChallenge{Challenge: challenge, Method: method},
	}
}

// AccountToken is a stored credential record: an authorization code, a
// refresh token or a passwordless token, bound to an account with a fixed expiry.
type AccountToken struct {
	ID                    string
	Kind                  TokenKind
	Token                 string
	AssociatedAccountID   string
	Domain                string
	ClientID              string
	Source                string
	TrackingSession       string
	AdditionalInformation AdditionalInformation
	CreatedAt             time.Time
	ExpiresAt             time.Time
}

// Expired reports whether the record is past its expiry at now.
func (t *AccountToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// Clone returns a deep copy of the record.
func (t *AccountToken) Clone() *AccountToken {
	out := *t
	out.AdditionalInformation.Restrictions = t.AdditionalInformation.Restrictions.Clone()
	if t.AdditionalInformation.PKCE != nil {
		pkce := *t.AdditionalInformation.PKCE
		out.AdditionalInformation.PKCE = &pkce
	}
	return &out
}

// APIKey is the persisted form of an API key. Only a digest of the key is kept.
type APIKey struct {
	ID        string
	KeyDigest string
	AppID     string
	Domain    string
	CreatedAt time.Time
}

var (
	errEmptyToken    = errors.New("token cannot be empty")
	errInvalidExpiry = errors.New("expiry must be after creation time")
)

// ValidateAccountToken enforces the record invariants shared by every backend.
func ValidateAccountToken(t *AccountToken) error {
	if t == nil {
		return errors.New("account token cannot be nil")
	}
	if t.Token == "" {
		return errEmptyToken
	}
	if !t.ExpiresAt.After(t.CreatedAt) {
		return errInvalidExpiry
	}
	return nil
}

// ValidateSession enforces the session invariants shared by every backend.
func ValidateSession(s *Session) error {
	if s == nil {
		return errors.New("session cannot be nil")
	}
	if s.Token == "" {
		return errEmptyToken
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return errInvalidExpiry
	}
	return nil
}

// AccountStore resolves accounts by id.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
}

// CredentialStore resolves credentials by username within a domain.
type CredentialStore interface {
	CreateCredential(ctx context.Context, credential *Credential) error
	GetCredentialByUsername(ctx context.Context, domain, username string) (*Credential, error)
}

// ApplicationStore resolves applications by id.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, id string) (*Application, error)
}

// ClientStore resolves OAuth clients by numeric id.
type ClientStore interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, id int64) (*Client, error)
}

// SessionStore persists sessions keyed by their token.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// AccountTokenStore persists account tokens keyed by kind and token value.
type AccountTokenStore interface {
	CreateAccountToken(ctx context.Context, token *AccountToken) error
	GetAccountToken(ctx context.Context, kind TokenKind, token string) (*AccountToken, error)
	// DeleteAccountToken removes a token and reports ErrNotFound when there
	// was nothing to remove. Of several concurrent deletes exactly one succeeds.
	DeleteAccountToken(ctx context.Context, kind TokenKind, token string) error
}

// APIKeyStore persists API keys keyed by the digest of the key.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKeyByDigest(ctx context.Context, digest string) (*APIKey, error)
}

// PrincipalStorage groups the stores holding long-lived principals.
type PrincipalStorage interface {
	AccountStore
	CredentialStore
	ApplicationStore
	ClientStore
}

// TokenStorage groups the stores holding short-lived credentials.
type TokenStorage interface {
	SessionStore
	AccountTokenStore
	APIKeyStore
}

// Storage is a backend able to hold everything.
type Storage interface {
	PrincipalStorage
	TokenStorage

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
