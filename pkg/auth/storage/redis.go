// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	// DefaultConnectAttempts bounds the startup connection retries.
	DefaultConnectAttempts = 5
)

// Key types used to partition the Redis keyspace.
const (
	KeyTypeSession      = "session"
	KeyTypeAccountToken = "token"
	KeyTypeAPIKey       = "apikey"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is a single-node address ("host:port"). Ignored when SentinelAddrs is set.
	Addr string `mapstructure:"addr" yaml:"addr"`

	// MasterName and SentinelAddrs enable Sentinel failover.
	MasterName    string   `mapstructure:"masterName" yaml:"masterName"`
	SentinelAddrs []string `mapstructure:"sentinelAddrs" yaml:"sentinelAddrs"`

	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`

	// KeyPrefix for multi-tenancy, e.g. "authguard:prod:".
	KeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix"`

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration `mapstructure:"dialTimeout" yaml:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`

	// ConnectAttempts bounds the startup ping retries (default 5).
	ConnectAttempts uint `mapstructure:"connectAttempts" yaml:"connectAttempts"`
}

// RedisStorage implements TokenStorage on Redis, enabling horizontal scaling
// of the short-lived credential state.
//
// Every key carries a TTL of the record's remaining lifetime plus the
// retention window, so an expired record is still visible to verifiers for a while.
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStorage creates Redis-backed storage. The connection is verified with
// a bounded exponential backoff; this is the only place a retry happens.
func NewRedisStorage(ctx context.Context, cfg RedisConfig, retention time.Duration) (*RedisStorage, error) {
	if err := validateRedisConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid redis configuration: %w", err)
	}

	// Apply defaults
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = DefaultConnectAttempts
	}

	client := newRedisClient(cfg)

	_, err := backoff.Retry(ctx, func() (any, error) {
		return nil, client.Ping(ctx).Err()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(cfg.ConnectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("redis not reachable yet, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewRedisStorageWithClient(client, cfg.KeyPrefix)
	if retention > 0 {
		s.retention = retention
	}
	return s, nil
}

// NewRedisStorageWithClient creates a RedisStorage with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStorageWithClient(client redis.UniversalClient, keyPrefix string) *RedisStorage {
	return &RedisStorage{
		client:    client,
		keyPrefix: keyPrefix,
		retention: DefaultExpiredRetention,
		now:       time.Now,
	}
}

// NewRedisClient builds a client for cfg without connecting.
func NewRedisClient(cfg RedisConfig) redis.UniversalClient {
	return newRedisClient(cfg)
}

func newRedisClient(cfg RedisConfig) redis.UniversalClient {
	if len(cfg.SentinelAddrs) > 0 {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelAddrs,
			DB:            cfg.DB,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

func validateRedisConfig(cfg *RedisConfig) error {
	if len(cfg.SentinelAddrs) > 0 {
		if cfg.MasterName == "" {
			return errors.New("sentinel master name is required")
		}
		return nil
	}
	if cfg.Addr == "" {
		return errors.New("redis address is required")
	}
	return nil
}

// redisKey builds a namespaced key: "{prefix}{keyType}:{id}".
func redisKey(prefix, keyType, id string) string {
	return prefix + keyType + ":" + id
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// Health checks Redis connectivity.
func (s *RedisStorage) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ttlFor returns the key lifetime for a record expiring at expiresAt.
func (s *RedisStorage) ttlFor(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now()) + s.retention
	if ttl <= 0 {
		// Already past retention; keep it just long enough to be read back once.
		return time.Second
	}
	return ttl
}

// setNX writes data under key unless the key exists.
func (s *RedisStorage) setNX(ctx context.Context, key string, data []byte, ttl time.Duration, what string) error {
	ok, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", what, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s already exists", ErrAlreadyExists, what)
	}
	return nil
}

// getJSON reads key and decodes it into out.
func (s *RedisStorage) getJSON(ctx context.Context, key string, out any, what string) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s not found", ErrNotFound, what)
		}
		return fmt.Errorf("failed to get %s: %w", what, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return nil
}

// -----------------------
// Sessions
// -----------------------

// storedSession is the JSON form of a Session.
type storedSession struct {
	ID                string `json:"id"`
	Token             string `json:"token"`
	AccountID         string `json:"account_id"`
	Domain            string `json:"domain"`
	ForTracking       bool   `json:"for_tracking"`
	ExternalSessionID string `json:"external_session_id,omitempty"`
	CreatedAt         int64  `json:"created_at"`
	ExpiresAt         int64  `json:"expires_at"`
}

// CreateSession stores a new session keyed by its token.
func (s *RedisStorage) CreateSession(ctx context.Context, session *Session) error {
	if err := ValidateSession(session); err != nil {
		return err
	}

	data, err := json.Marshal(storedSession{
		ID:                session.ID,
		Token:             session.Token,
		AccountID:         session.AccountID,
		Domain:            session.Domain,
		ForTracking:       session.ForTracking,
		ExternalSessionID: session.ExternalSessionID,
		CreatedAt:         session.CreatedAt.UnixMilli(),
		ExpiresAt:         session.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := redisKey(s.keyPrefix, KeyTypeSession, session.Token)
	return s.setNX(ctx, key, data, s.ttlFor(session.ExpiresAt), "session")
}

// GetSessionByToken retrieves a session by token.
func (s *RedisStorage) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	var stored storedSession
	if err := s.getJSON(ctx, redisKey(s.keyPrefix, KeyTypeSession, token), &stored, "session"); err != nil {
		return nil, err
	}

	return &Session{
		ID:                stored.ID,
		Token:             stored.Token,
		AccountID:         stored.AccountID,
		Domain:            stored.Domain,
		ForTracking:       stored.ForTracking,
		ExternalSessionID: stored.ExternalSessionID,
		CreatedAt:         time.UnixMilli(stored.CreatedAt),
		ExpiresAt:         time.UnixMilli(stored.ExpiresAt),
	}, nil
}

// DeleteSession removes a session.
func (s *RedisStorage) DeleteSession(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, redisKey(s.keyPrefix, KeyTypeSession, token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// -----------------------
// Account tokens
// -----------------------

// storedAccountToken is the JSON form of an AccountToken. The additional
// information variant is serialized with its kind tag.
type storedAccountToken struct {
	ID                    string                `json:"id"`
	Kind                  TokenKind             `json:"kind"`
	Token                 string                `json:"token"`
	AssociatedAccountID   string                `json:"associated_account_id"`
	Domain                string                `json:"domain"`
	ClientID              string                `json:"client_id,omitempty"`
	Source                string                `json:"source,omitempty"`
	TrackingSession       string                `json:"tracking_session,omitempty"`
	AdditionalInformation AdditionalInformation `json:"additional_information"`
	CreatedAt             int64                 `json:"created_at"`
	ExpiresAt             int64                 `json:"expires_at"`
}

// CreateAccountToken stores a new account token.
func (s *RedisStorage) CreateAccountToken(ctx context.Context, token *AccountToken) error {
	if err := ValidateAccountToken(token); err != nil {
		return err
	}

	data, err := json.Marshal(storedAccountToken{
		ID:                    token.ID,
		Kind:                  token.Kind,
		Token:                 token.Token,
		AssociatedAccountID:   token.AssociatedAccountID,
		Domain:                token.Domain,
		ClientID:              token.ClientID,
		Source:                token.Source,
		TrackingSession:       token.TrackingSession,
		AdditionalInformation: token.AdditionalInformation,
		CreatedAt:             token.CreatedAt.UnixMilli(),
		ExpiresAt:             token.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal account token: %w", err)
	}

	key := redisKey(s.keyPrefix, KeyTypeAccountToken, tokenKey(token.Kind, token.Token))
	return s.setNX(ctx, key, data, s.ttlFor(token.ExpiresAt), "account token")
}

// GetAccountToken retrieves an account token by kind and value.
func (s *RedisStorage) GetAccountToken(ctx context.Context, kind TokenKind, token string) (*AccountToken, error) {
	var stored storedAccountToken
	key := redisKey(s.keyPrefix, KeyTypeAccountToken, tokenKey(kind, token))
	if err := s.getJSON(ctx, key, &stored, "account token"); err != nil {
		return nil, err
	}

	return &AccountToken{
		ID:                    stored.ID,
		Kind:                  stored.Kind,
		Token:                 stored.Token,
		AssociatedAccountID:   stored.AssociatedAccountID,
		Domain:                stored.Domain,
		ClientID:              stored.ClientID,
		Source:                stored.Source,
		TrackingSession:       stored.TrackingSession,
		AdditionalInformation: stored.AdditionalInformation,
		CreatedAt:             time.UnixMilli(stored.CreatedAt),
		ExpiresAt:             time.UnixMilli(stored.ExpiresAt),
	}, nil
}

// DeleteAccountToken removes an account token, or reports ErrNotFound.
func (s *RedisStorage) DeleteAccountToken(ctx context.Context, kind TokenKind, token string) error {
	key := redisKey(s.keyPrefix, KeyTypeAccountToken, tokenKey(kind, token))
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete account token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: token not found", ErrNotFound)
	}
	return nil
}

// -----------------------
// API keys
// -----------------------

type storedAPIKey struct {
	ID        string `json:"id"`
	KeyDigest string `json:"key_digest"`
	AppID     string `json:"app_id"`
	Domain    string `json:"domain"`
	CreatedAt int64  `json:"created_at"`
}

// CreateAPIKey stores a new API key record. API keys don't expire (TTL=0).
func (s *RedisStorage) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if key == nil || key.KeyDigest == "" {
		return errors.New("api key digest cannot be empty")
	}

	data, err := json.Marshal(storedAPIKey{
		ID:        key.ID,
		KeyDigest: key.KeyDigest,
		AppID:     key.AppID,
		Domain:    key.Domain,
		CreatedAt: key.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal api key: %w", err)
	}

	return s.setNX(ctx, redisKey(s.keyPrefix, KeyTypeAPIKey, key.KeyDigest), data, 0, "api key")
}

// GetAPIKeyByDigest retrieves an API key record by digest.
func (s *RedisStorage) GetAPIKeyByDigest(ctx context.Context, digest string) (*APIKey, error) {
	var stored storedAPIKey
	if err := s.getJSON(ctx, redisKey(s.keyPrefix, KeyTypeAPIKey, digest), &stored, "api key"); err != nil {
		return nil, err
	}

	return &APIKey{
		ID:        stored.ID,
		KeyDigest: stored.KeyDigest,
		AppID:     stored.AppID,
		Domain:    stored.Domain,
		CreatedAt: time.UnixMilli(stored.CreatedAt),
	}, nil
}

// Compile-time interface compliance check
var _ TokenStorage = (*RedisStorage)(nil)
