// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package engine assembles the token exchange engine from configuration:
// storage, signing keys, token providers, verifiers, the exchange
// dispatcher and the services built on top of it.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	"github.com/stacklok/authguard/pkg/auth/apikeys"
	"github.com/stacklok/authguard/pkg/auth/bearer"
	"github.com/stacklok/authguard/pkg/auth/exchange"
	"github.com/stacklok/authguard/pkg/auth/keys"
	"github.com/stacklok/authguard/pkg/auth/oidc"
	"github.com/stacklok/authguard/pkg/auth/passwords"
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	"github.com/stacklok/authguard/pkg/auth/verifier"
	"github.com/stacklok/authguard/pkg/config"
	"github.com/stacklok/authguard/pkg/events"
	"github.com/stacklok/authguard/pkg/logger"
	"github.com/stacklok/authguard/pkg/telemetry"
)

// Engine is the assembled token exchange engine.
type Engine struct {
	config  *config.Config
	version string

	store     storage.Storage
	keys      keys.KeyProvider
	passwords *passwords.Manager
	telemetry *telemetry.Provider
	bus       *events.Bus
	publisher *events.AsyncPublisher

	dispatcher   *exchange.Dispatcher
	exchanger    exchange.Exchanger
	orchestrator *oidc.Orchestrator
	apiKeys      *apikeys.Service
	discovery    *oidc.DiscoveryDocument
	validator    *bearer.Validator

	closers []func(context.Context) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithStorage uses s instead of opening the configured backends. The
// engine takes ownership and closes s.
func WithStorage(s storage.Storage) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithKeyProvider uses p instead of the configured keys.
func WithKeyProvider(p keys.KeyProvider) Option {
	return func(e *Engine) {
		e.keys = p
	}
}

// WithPasswords overrides the password manager used for seeding.
func WithPasswords(m *passwords.Manager) Option {
	return func(e *Engine) {
		e.passwords = m
	}
}

// WithTelemetry uses p instead of building a provider from configuration.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(e *Engine) {
		e.telemetry = p
	}
}

// WithVersion sets the service version reported in telemetry.
func WithVersion(v string) Option {
	return func(e *Engine) {
		e.version = v
	}
}

// New builds an Engine from cfg. Everything opened before a failure is
// released again.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Engine, retErr error) {
	e := &Engine{config: cfg, version: "dev"}
	for _, opt := range opts {
		opt(e)
	}
	defer func() {
		if retErr != nil {
			_ = e.Close(context.WithoutCancel(ctx))
		}
	}()

	if e.passwords == nil {
		e.passwords = passwords.NewManager()
	}

	if e.store == nil {
		store, err := OpenStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		e.store = store
	}
	e.onClose(func(context.Context) error { return e.store.Close() })

	if cfg.SeedFile != "" {
		seed, err := LoadSeed(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		if err := seed.Apply(ctx, e.store, e.passwords, cfg.Domain); err != nil {
			return nil, fmt.Errorf("failed to apply seed: %w", err)
		}
	}

	if e.keys == nil {
		provider, err := keys.NewProviderFromConfig(cfg.Keys)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing keys: %w", err)
		}
		e.keys = provider
	}

	if e.telemetry == nil {
		provider, err := telemetry.NewProvider(ctx, e.telemetryConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to set up telemetry: %w", err)
		}
		e.telemetry = provider
	}
	e.onClose(e.telemetry.Shutdown)

	if err := e.buildEvents(); err != nil {
		return nil, err
	}
	if err := e.buildExchanges(); err != nil {
		return nil, err
	}
	if err := e.buildDiscovery(ctx); err != nil {
		return nil, err
	}

	logger.Infow("token exchange engine ready",
		"issuer", cfg.Issuer,
		"exchanges", len(e.dispatcher.Exchanges()),
		"principals", cfg.Storage.Principals,
		"tokens", cfg.Storage.Tokens,
		"events", cfg.Events.Type)
	return e, nil
}

func (e *Engine) telemetryConfig() telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = e.version
	tc.Endpoint = e.config.Telemetry.Endpoint
	tc.Insecure = e.config.Telemetry.Insecure
	tc.TracingEnabled = e.config.Telemetry.TracingEnabled
	tc.SamplingRate = e.config.Telemetry.SamplingRate
	tc.ResourceAttributes = e.config.Telemetry.ResourceAttributes
	tc.PrometheusEnabled = e.config.Telemetry.Metrics.Enabled
	return tc
}

// buildEvents routes every channel through an in-process bus to the
// configured sink.
func (e *Engine) buildEvents() error {
	e.bus = events.NewBus()

	var sink events.Sender
	switch e.config.Events.Type {
	case config.EventsLog, "":
		sink = events.NewLogSender(logger.Named("events"))
	case config.EventsRedis:
		client := storage.NewRedisClient(e.config.Storage.Redis)
		e.onClose(func(context.Context) error { return client.Close() })
		sink = events.NewRedisSender(client, e.config.Events.ChannelPrefix)
	case config.EventsNone:
	default:
		return fmt.Errorf("unsupported events type %q", e.config.Events.Type)
	}
	if sink != nil {
		for _, channel := range events.Channels {
			e.bus.Subscribe(channel, sink.Send)
		}
	}

	e.publisher = events.NewAsyncPublisher(e.bus, events.WithLogger(logger.Named("events")))
	e.onClose(e.publisher.Flush)
	return nil
}

func (e *Engine) buildExchanges() error {
	tokenCfg := e.config.Tokens
	tokenCfg.Issuer = e.config.Issuer
	tokenCfg = tokenCfg.WithDefaults()

	store := e.store
	signer := tokens.NewJWTSigner(e.keys, tokenCfg.Issuer)
	e.validator = bearer.NewValidator(signer)
	sessions := tokens.NewSessionProvider(tokenCfg, store)
	access := tokens.NewAccessTokenProvider(tokenCfg, signer, store)

	handlers := exchange.DefaultHandlers(exchange.Components{
		Accounts:      store,
		Applications:  store,
		Basic:         verifier.NewBasicVerifier(store, store, e.passwords, sessions),
		Sessions:      verifier.NewSessionVerifier(store),
		Codes:         verifier.NewAuthorizationCodeVerifier(store),
		Refresh:       verifier.NewRefreshTokenVerifier(store),
		Passwordless:  verifier.NewPasswordlessVerifier(store),
		AccessTokens:  access,
		OIDCTokens:    tokens.NewOIDCProvider(access, tokens.NewIDTokenProvider(tokenCfg, signer)),
		CodeTokens:    tokens.NewAuthorizationCodeProvider(tokenCfg, store),
		MagicTokens:   tokens.NewPasswordlessProvider(tokenCfg, store),
		SessionTokens: sessions,
		APIKeys:       tokens.NewAPIKeyProvider(store),
		Publisher:     e.publisher,
	})

	dispatcher, err := exchange.NewDispatcher(handlers, exchange.WithLogger(logger.Named("exchange")))
	if err != nil {
		return fmt.Errorf("failed to build dispatcher: %w", err)
	}
	e.dispatcher = dispatcher

	e.exchanger, err = telemetry.MonitorDispatcher(dispatcher, e.telemetry.MeterProvider(), e.telemetry.TracerProvider())
	if err != nil {
		return fmt.Errorf("failed to instrument dispatcher: %w", err)
	}

	e.orchestrator, err = oidc.NewOrchestrator(e.exchanger, store)
	if err != nil {
		return err
	}
	e.apiKeys = apikeys.NewService(e.exchanger, store, verifier.NewAPIKeyVerifier(store, store))
	return nil
}

func (e *Engine) buildDiscovery(ctx context.Context) error {
	signing, err := e.keys.SigningKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to read signing key: %w", err)
	}
	e.discovery, err = oidc.NewDiscoveryDocument(e.config.Issuer, []string{signing.Algorithm})
	if err != nil {
		return fmt.Errorf("failed to build discovery document: %w", err)
	}
	return nil
}

func (e *Engine) onClose(fn func(context.Context) error) {
	e.closers = append(e.closers, fn)
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.config }

// Exchanger returns the instrumented dispatcher.
func (e *Engine) Exchanger() exchange.Exchanger { return e.exchanger }

// Exchanges lists the registered exchange keys.
func (e *Engine) Exchanges() []string { return e.dispatcher.Exchanges() }

// OIDC returns the OIDC orchestrator.
func (e *Engine) OIDC() *oidc.Orchestrator { return e.orchestrator }

// APIKeys returns the API key service.
func (e *Engine) APIKeys() *apikeys.Service { return e.apiKeys }

// AccessTokens verifies access tokens minted by the engine.
func (e *Engine) AccessTokens() *bearer.Validator { return e.validator }

// Discovery returns the OpenID provider metadata.
func (e *Engine) Discovery() *oidc.DiscoveryDocument { return e.discovery }

// Events returns the bus every notification passes through. Subscribers
// added here receive messages alongside the configured sink.
func (e *Engine) Events() *events.Bus { return e.bus }

// Storage returns the storage backend.
func (e *Engine) Storage() storage.Storage { return e.store }

// Telemetry returns the telemetry provider.
func (e *Engine) Telemetry() *telemetry.Provider { return e.telemetry }

// JWKS returns the public signing keys.
func (e *Engine) JWKS(ctx context.Context) (*jose.JSONWebKeySet, error) {
	return keys.JWKS(ctx, e.keys)
}

// Health reports whether the storage backends are reachable.
func (e *Engine) Health(ctx context.Context) error {
	return e.store.Health(ctx)
}

// Close flushes pending notifications and releases every resource, in
// reverse order of acquisition.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
