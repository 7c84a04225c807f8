// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// timedEntry wraps a value with its creation and expiry time for TTL tracking.
type timedEntry[T any] struct {
	value     T
	createdAt time.Time
	expiresAt time.Time
}

// MemoryStorage implements the Storage interface with in-memory maps.
// This implementation is thread-safe and suitable for development and testing.
//
// Short-lived records (sessions, account tokens) are swept by a background
// goroutine once they have been expired for longer than the retention window.
// Expiry itself is always enforced by the reader, never by the sweep.
type MemoryStorage struct {
	mu sync.RWMutex

	// accounts maps account id -> Account.
	accounts map[string]*Account

	// credentials maps credentialKey(domain, username) -> Credential.
	credentials map[string]*Credential

	// applications maps application id -> Application.
	applications map[string]*Application

	// clients maps numeric client id -> Client.
	clients map[int64]*Client

	// sessions maps session token -> Session.
	sessions map[string]*timedEntry[*Session]

	// accountTokens maps tokenKey(kind, token) -> AccountToken.
	accountTokens map[string]*timedEntry[*AccountToken]

	// apiKeys maps key digest -> APIKey. API keys do not expire.
	apiKeys map[string]*APIKey

	// retention is how long expired records are kept before the sweep drops them
	retention time.Duration

	// now is the clock used by the sweep
	now func() time.Time

	// cleanupInterval is how often the background cleanup runs
	cleanupInterval time.Duration

	// stopCleanup is used to signal the cleanup goroutine to stop
	stopCleanup chan struct{}

	// cleanupDone is closed when the cleanup goroutine has fully stopped
	cleanupDone chan struct{}

	closeOnce sync.Once
}

// MemoryStorageOption configures a MemoryStorage instance.
type MemoryStorageOption func(*MemoryStorage)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStorageOption {
	return func(s *MemoryStorage) {
		s.cleanupInterval = interval
	}
}

// WithExpiredRetention sets how long expired records survive the sweep.
func WithExpiredRetention(retention time.Duration) MemoryStorageOption {
	return func(s *MemoryStorage) {
		s.retention = retention
	}
}

// WithClock overrides the clock used by the sweep.
func WithClock(now func() time.Time) MemoryStorageOption {
	return func(s *MemoryStorage) {
		s.now = now
	}
}

// NewMemoryStorage creates a new MemoryStorage instance with initialized maps
// and starts the background cleanup goroutine.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		accounts:        make(map[string]*Account),
		credentials:     make(map[string]*Credential),
		applications:    make(map[string]*Application),
		clients:         make(map[int64]*Client),
		sessions:        make(map[string]*timedEntry[*Session]),
		accountTokens:   make(map[string]*timedEntry[*AccountToken]),
		apiKeys:         make(map[string]*APIKey),
		retention:       DefaultExpiredRetention,
		now:             time.Now,
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Start background cleanup goroutine
	go s.cleanupLoop()

	return s
}

// Health is a no-op for in-memory storage since it is always available.
func (*MemoryStorage) Health(_ context.Context) error {
	return nil
}

// Close stops the background cleanup goroutine and waits for it to finish.
// It is safe to call more than once.
func (s *MemoryStorage) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
	})
	return nil
}

// cleanupLoop runs periodic cleanup of expired entries.
func (s *MemoryStorage) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired removes entries that have been expired for longer than the
// retention window. Uses collect-then-delete: keys are collected under the read
// lock and deleted under the write lock to keep write lock hold time short.
func (s *MemoryStorage) cleanupExpired() {
	cutoff := s.now().Add(-s.retention)

	s.mu.RLock()
	var expiredSessions []string
	for k, v := range s.sessions {
		if v.expiresAt.Before(cutoff) {
			expiredSessions = append(expiredSessions, k)
		}
	}
	var expiredTokens []string
	for k, v := range s.accountTokens {
		if v.expiresAt.Before(cutoff) {
			expiredTokens = append(expiredTokens, k)
		}
	}
	s.mu.RUnlock()

	if len(expiredSessions) == 0 && len(expiredTokens) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock; an entry may have been replaced meanwhile.
	for _, k := range expiredSessions {
		if v, ok := s.sessions[k]; ok && v.expiresAt.Before(cutoff) {
			delete(s.sessions, k)
		}
	}
	for _, k := range expiredTokens {
		if v, ok := s.accountTokens[k]; ok && v.expiresAt.Before(cutoff) {
			delete(s.accountTokens, k)
		}
	}
}

// credentialKey builds the lookup key for a credential. The length prefix keeps
// keys collision-free when domains contain the separator.
func credentialKey(domain, username string) string {
	return fmt.Sprintf("%d:%s:%s", len(domain), domain, username)
}

// tokenKey builds the lookup key for an account token.
func tokenKey(kind TokenKind, token string) string {
	return string(kind) + ":" + token
}

// -----------------------
// Principals
// -----------------------

// CreateAccount stores a new account.
// Returns ErrAlreadyExists if an account with the same ID already exists.
func (s *MemoryStorage) CreateAccount(_ context.Context, account *Account) error {
	if account == nil || account.ID == "" {
		return errors.New("account ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("%w: account already exists", ErrAlreadyExists)
	}
	s.accounts[account.ID] = account.Clone()
	return nil
}

// GetAccount retrieves an account by ID.
// Returns ErrNotFound if the account does not exist.
func (s *MemoryStorage) GetAccount(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account not found", ErrNotFound)
	}
	return account.Clone(), nil
}

// CreateCredential stores a new credential.
// Returns ErrAlreadyExists if the username is already taken within the domain.
func (s *MemoryStorage) CreateCredential(_ context.Context, credential *Credential) error {
	if credential == nil || credential.Username == "" {
		return errors.New("credential username cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(credential.Domain, credential.Username)
	if _, exists := s.credentials[key]; exists {
		return fmt.Errorf("%w: username already taken", ErrAlreadyExists)
	}
	c := *credential
	s.credentials[key] = &c
	return nil
}

// GetCredentialByUsername retrieves a credential by domain and username.
// Returns ErrNotFound if no credential matches.
func (s *MemoryStorage) GetCredentialByUsername(_ context.Context, domain, username string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, ok := s.credentials[credentialKey(domain, username)]
	if !ok {
		return nil, fmt.Errorf("%w: credential not found", ErrNotFound)
	}
	c := *credential
	return &c, nil
}

// CreateApplication stores a new application.
func (s *MemoryStorage) CreateApplication(_ context.Context, app *Application) error {
	if app == nil || app.ID == "" {
		return errors.New("application ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.applications[app.ID]; exists {
		return fmt.Errorf("%w: application already exists", ErrAlreadyExists)
	}
	s.applications[app.ID] = app.Clone()
	return nil
}

// GetApplication retrieves an application by ID.
func (s *MemoryStorage) GetApplication(_ context.Context, id string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[id]
	if !ok {
		return nil, fmt.Errorf("%w: application not found", ErrNotFound)
	}
	return app.Clone(), nil
}

// CreateClient stores a new OAuth client.
func (s *MemoryStorage) CreateClient(_ context.Context, client *Client) error {
	if client == nil {
		return errors.New("client cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[client.ID]; exists {
		return fmt.Errorf("%w: client already exists", ErrAlreadyExists)
	}
	c := *client
	s.clients[client.ID] = &c
	return nil
}

// GetClient retrieves an OAuth client by ID.
func (s *MemoryStorage) GetClient(_ context.Context, id int64) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: client not found", ErrNotFound)
	}
	c := *client
	return &c, nil
}

// -----------------------
// Sessions
// -----------------------

// CreateSession stores a new session keyed by its token.
func (s *MemoryStorage) CreateSession(_ context.Context, session *Session) error {
	if err := ValidateSession(session); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.Token]; exists {
		return fmt.Errorf("%w: session already exists", ErrAlreadyExists)
	}
	c := *session
	s.sessions[session.Token] = &timedEntry[*Session]{
		value:     &c,
		createdAt: session.CreatedAt,
		expiresAt: session.ExpiresAt,
	}
	return nil
}

// GetSessionByToken retrieves a session by token. Expired sessions are still
// returned until swept; the caller decides what expiry means.
func (s *MemoryStorage) GetSessionByToken(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("%w: session not found", ErrNotFound)
	}
	c := *entry.value
	return &c, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (s *MemoryStorage) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

// -----------------------
// Account tokens
// -----------------------

// CreateAccountToken stores a new account token.
func (s *MemoryStorage) CreateAccountToken(_ context.Context, token *AccountToken) error {
	if err := ValidateAccountToken(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey(token.Kind, token.Token)
	if _, exists := s.accountTokens[key]; exists {
		return fmt.Errorf("%w: token already exists", ErrAlreadyExists)
	}
	s.accountTokens[key] = &timedEntry[*AccountToken]{
		value:     token.Clone(),
		createdAt: token.CreatedAt,
		expiresAt: token.ExpiresAt,
	}
	return nil
}

// GetAccountToken retrieves an account token by kind and value. Expired
// tokens are still returned until swept.
func (s *MemoryStorage) GetAccountToken(_ context.Context, kind TokenKind, token string) (*AccountToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.accountTokens[tokenKey(kind, token)]
	if !ok {
		return nil, fmt.Errorf("%w: token not found", ErrNotFound)
	}
	return entry.value.Clone(), nil
}

// DeleteAccountToken removes an account token, or reports ErrNotFound.
func (s *MemoryStorage) DeleteAccountToken(_ context.Context, kind TokenKind, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey(kind, token)
	if _, ok := s.accountTokens[key]; !ok {
		return fmt.Errorf("%w: token not found", ErrNotFound)
	}
	delete(s.accountTokens, key)
	return nil
}

// -----------------------
// API keys
// -----------------------

// CreateAPIKey stores a new API key record.
func (s *MemoryStorage) CreateAPIKey(_ context.Context, key *APIKey) error {
	if key == nil || key.KeyDigest == "" {
		return errors.New("api key digest cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apiKeys[key.KeyDigest]; exists {
		return fmt.Errorf("%w: api key already exists", ErrAlreadyExists)
	}
	c := *key
	s.apiKeys[key.KeyDigest] = &c
	return nil
}

// GetAPIKeyByDigest retrieves an API key record by the digest of the key.
func (s *MemoryStorage) GetAPIKeyByDigest(_ context.Context, digest string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.apiKeys[digest]
	if !ok {
		return nil, fmt.Errorf("%w: api key not found", ErrNotFound)
	}
	c := *key
	return &c, nil
}

// Stats provides statistics about the storage contents.
type Stats struct {
	Accounts      int
	Credentials   int
	Applications  int
	Clients       int
	Sessions      int
	AccountTokens int
	APIKeys       int
}

// Stats returns current statistics about storage contents.
func (s *MemoryStorage) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Accounts:      len(s.accounts),
		Credentials:   len(s.credentials),
		Applications:  len(s.applications),
		Clients:       len(s.clients),
		Sessions:      len(s.sessions),
		AccountTokens: len(s.accountTokens),
		APIKeys:       len(s.apiKeys),
	}
}

// Compile-time interface compliance check
var _ Storage = (*MemoryStorage)(nil)
