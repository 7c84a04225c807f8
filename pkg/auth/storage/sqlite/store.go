// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/stacklok/authguard/pkg/auth/storage"
)

// Store implements storage.Storage using SQLite.
type Store struct {
	wrapper *DB
	db      *sql.DB

	retention       time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithExpiredRetention sets how long expired rows survive the purge.
func WithExpiredRetention(retention time.Duration) Option {
	return func(s *Store) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

// WithCleanupInterval sets how often expired rows are purged.
func WithCleanupInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// WithClock overrides the clock used by the purge.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new SQLite-backed Store and starts the purge loop.
func NewStore(db *DB, opts ...Option) *Store {
	s := &Store{
		wrapper:         db,
		db:              db.DB(),
		retention:       storage.DefaultExpiredRetention,
		cleanupInterval: storage.DefaultCleanupInterval,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop()
	return s
}

var _ storage.Storage = (*Store)(nil)

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the purge loop and closes the database. Safe to call twice.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
		err = s.wrapper.Close()
	})
	return err
}

func (s *Store) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			if _, err := s.PurgeExpired(context.Background()); err != nil {
				slog.Warn("failed to purge expired sqlite rows", "error", err)
			}
		}
	}
}

// PurgeExpired deletes sessions and account tokens that expired before the
// retention window and returns how many rows were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention).UnixMilli()

	var total int64
	for _, table := range []string{"sessions", "account_tokens"} {
		// table is one of two constants above.
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at < ?`, cutoff) //nolint:gosec
		if err != nil {
			return total, fmt.Errorf("purging %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("counting purged %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// -----------------------
// Principals
// -----------------------

// CreateAccount stores a new account.
func (s *Store) CreateAccount(ctx context.Context, account *storage.Account) error {
	if account == nil || account.ID == "" {
		return errors.New("account ID cannot be empty")
	}
	roles, err := encodeJSONB(account.Roles)
	if err != nil {
		return fmt.Errorf("encoding roles: %w", err)
	}
	perms, err := encodeJSONB(account.Permissions)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, domain, email, roles, permissions, active, created_at)
		VALUES (?, ?, ?, jsonb(?), jsonb(?), ?, ?)`,
		account.ID, account.Domain, account.Email, roles, perms,
		account.Active, formatTime(account.CreatedAt),
	)
	return insertError(err, "account")
}

// GetAccount retrieves an account by ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*storage.Account, error) {
	var (
		a            storage.Account
		roles, perms []byte
		createdAt    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, domain, email, json(roles), json(permissions), active, created_at
		FROM accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Domain, &a.Email, &roles, &perms, &a.Active, &createdAt)
	if err != nil {
		return nil, queryError(err, "account")
	}
	if a.Roles, err = decodeJSONB(roles); err != nil {
		return nil, fmt.Errorf("decoding roles: %w", err)
	}
	if a.Permissions, err = decodeJSONB(perms); err != nil {
		return nil, fmt.Errorf("decoding permissions: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateCredential stores a new credential. Usernames are unique per domain.
func (s *Store) CreateCredential(ctx context.Context, c *storage.Credential) error {
	if c == nil || c.Username == "" {
		return errors.New("credential username cannot be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, account_id, domain, username, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.Domain, c.Username, c.PasswordHash, formatTime(c.CreatedAt),
	)
	return insertError(err, "credential")
}

// GetCredentialByUsername retrieves a credential by domain and username.
func (s *Store) GetCredentialByUsername(ctx context.Context, domain, username string) (*storage.Credential, error) {
	var (
		c         storage.Credential
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, domain, username, password_hash, created_at
		FROM credentials WHERE domain = ? AND username = ?`, domain, username,
	).Scan(&c.ID, &c.AccountID, &c.Domain, &c.Username, &c.PasswordHash, &createdAt)
	if err != nil {
		return nil, queryError(err, "credential")
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateApplication stores a new application.
func (s *Store) CreateApplication(ctx context.Context, app *storage.Application) error {
	if app == nil || app.ID == "" {
		return errors.New("application ID cannot be empty")
	}
	roles, err := encodeJSONB(app.Roles)
	if err != nil {
		return fmt.Errorf("encoding roles: %w", err)
	}
	perms, err := encodeJSONB(app.Permissions)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (id, domain, name, parent_account_id, roles, permissions, active, created_at)
		VALUES (?, ?, ?, ?, jsonb(?), jsonb(?), ?, ?)`,
		app.ID, app.Domain, app.Name, app.ParentAccountID, roles, perms,
		app.Active, formatTime(app.CreatedAt),
	)
	return insertError(err, "application")
}

// GetApplication retrieves an application by ID.
func (s *Store) GetApplication(ctx context.Context, id string) (*storage.Application, error) {
	var (
		a            storage.Application
		roles, perms []byte
		createdAt    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, domain, name, parent_account_id, json(roles), json(permissions), active, created_at
		FROM applications WHERE id = ?`, id,
	).Scan(&a.ID, &a.Domain, &a.Name, &a.ParentAccountID, &roles, &perms, &a.Active, &createdAt)
	if err != nil {
		return nil, queryError(err, "application")
	}
	if a.Roles, err = decodeJSONB(roles); err != nil {
		return nil, fmt.Errorf("decoding roles: %w", err)
	}
	if a.Permissions, err = decodeJSONB(perms); err != nil {
		return nil, fmt.Errorf("decoding permissions: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateClient stores a new OAuth client.
func (s *Store) CreateClient(ctx context.Context, c *storage.Client) error {
	if c == nil {
		return errors.New("client cannot be nil")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, client_type, domain, base_url, account_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, string(c.ClientType), c.Domain, c.BaseURL, c.AccountID, formatTime(c.CreatedAt),
	)
	return insertError(err, "client")
}

// GetClient retrieves an OAuth client by ID.
func (s *Store) GetClient(ctx context.Context, id int64) (*storage.Client, error) {
	var (
		c          storage.Client
		clientType string
		createdAt  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, client_type, domain, base_url, account_id, created_at
		FROM clients WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &clientType, &c.Domain, &c.BaseURL, &c.AccountID, &createdAt)
	if err != nil {
		return nil, queryError(err, "client")
	}
	c.ClientType = storage.ClientType(clientType)
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// -----------------------
// Sessions
// -----------------------

// CreateSession stores a new session keyed by its token.
func (s *Store) CreateSession(ctx context.Context, session *storage.Session) error {
	if err := storage.ValidateSession(session); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, id, account_id, domain, for_tracking, external_session_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.Token, session.ID, session.AccountID, session.Domain, session.ForTracking,
		session.ExternalSessionID, formatTime(session.CreatedAt), session.ExpiresAt.UnixMilli(),
	)
	return insertError(err, "session")
}

// GetSessionByToken retrieves a session by token. Expired sessions are
// returned until purged.
func (s *Store) GetSessionByToken(ctx context.Context, token string) (*storage.Session, error) {
	var (
		sess      storage.Session
		createdAt string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, id, account_id, domain, for_tracking, external_session_id, created_at, expires_at
		FROM sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &sess.ID, &sess.AccountID, &sess.Domain, &sess.ForTracking,
		&sess.ExternalSessionID, &createdAt, &expiresAt)
	if err != nil {
		return nil, queryError(err, "session")
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	sess.ExpiresAt = time.UnixMilli(expiresAt)
	return &sess, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// -----------------------
// Account tokens
// -----------------------

// CreateAccountToken stores a new account token.
func (s *Store) CreateAccountToken(ctx context.Context, t *storage.AccountToken) error {
	if err := storage.ValidateAccountToken(t); err != nil {
		return err
	}
	info, err := json.Marshal(t.AdditionalInformation)
	if err != nil {
		return fmt.Errorf("encoding additional information: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO account_tokens (
			kind, token, id, associated_account_id, domain, client_id,
			source, tracking_session, additional_information, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.Kind), t.Token, t.ID, t.AssociatedAccountID, t.Domain, t.ClientID,
		t.Source, t.TrackingSession, info, formatTime(t.CreatedAt), t.ExpiresAt.UnixMilli(),
	)
	return insertError(err, "account token")
}

// GetAccountToken retrieves an account token by kind and value.
func (s *Store) GetAccountToken(ctx context.Context, kind storage.TokenKind, token string) (*storage.AccountToken, error) {
	var (
		t         storage.AccountToken
		rowKind   string
		info      []byte
		createdAt string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT kind, token, id, associated_account_id, domain, client_id,
			source, tracking_session, additional_information, created_at, expires_at
		FROM account_tokens WHERE kind = ? AND token = ?`, string(kind), token,
	).Scan(&rowKind, &t.Token, &t.ID, &t.AssociatedAccountID, &t.Domain, &t.ClientID,
		&t.Source, &t.TrackingSession, &info, &createdAt, &expiresAt)
	if err != nil {
		return nil, queryError(err, "account token")
	}
	t.Kind = storage.TokenKind(rowKind)
	if len(info) > 0 {
		if err := json.Unmarshal(info, &t.AdditionalInformation); err != nil {
			return nil, fmt.Errorf("decoding additional information: %w", err)
		}
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	t.ExpiresAt = time.UnixMilli(expiresAt)
	return &t, nil
}

// DeleteAccountToken removes an account token, or reports storage.ErrNotFound.
func (s *Store) DeleteAccountToken(ctx context.Context, kind storage.TokenKind, token string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM account_tokens WHERE kind = ? AND token = ?`, string(kind), token,
	)
	if err != nil {
		return fmt.Errorf("deleting account token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting deleted account tokens: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: token not found", storage.ErrNotFound)
	}
	return nil
}

// -----------------------
// API keys
// -----------------------

// CreateAPIKey stores a new API key record.
func (s *Store) CreateAPIKey(ctx context.Context, key *storage.APIKey) error {
	if key == nil || key.KeyDigest == "" {
		return errors.New("api key digest cannot be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (key_digest, id, app_id, domain, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		key.KeyDigest, key.ID, key.AppID, key.Domain, formatTime(key.CreatedAt),
	)
	return insertError(err, "api key")
}

// GetAPIKeyByDigest retrieves an API key record by digest.
func (s *Store) GetAPIKeyByDigest(ctx context.Context, digest string) (*storage.APIKey, error) {
	var (
		k         storage.APIKey
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT key_digest, id, app_id, domain, created_at
		FROM api_keys WHERE key_digest = ?`, digest,
	).Scan(&k.KeyDigest, &k.ID, &k.AppID, &k.Domain, &createdAt)
	if err != nil {
		return nil, queryError(err, "api key")
	}
	if k.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &k, nil
}

// -----------------------
// helpers
// -----------------------

func insertError(err error, what string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s already exists", storage.ErrAlreadyExists, what)
	}
	return fmt.Errorf("inserting %s: %w", what, err)
}

func queryError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s not found", storage.ErrNotFound, what)
	}
	return fmt.Errorf("querying %s: %w", what, err)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t, nil
}

// encodeJSONB marshals a string slice for the SQLite jsonb() function.
func encodeJSONB(values []string) (string, error) {
	if values == nil {
		return "null", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return string(data), nil
}

// decodeJSONB unmarshals a JSONB blob from SQLite into a string slice.
func decodeJSONB(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var result []string
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshaling JSON: %w", err)
	}
	return result, nil
}

// isUniqueViolation checks for a SQLite UNIQUE or PRIMARY KEY constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
