// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the authguard configuration
// document and the logic required to load and validate it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stacklok/authguard/pkg/auth/keys"
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/tokens"
)

// EnvPrefix prefixes every environment override, e.g. AUTHGUARD_STORAGE_REDIS_ADDR.
const EnvPrefix = "AUTHGUARD"

// EventsType selects the notification sink.
type EventsType string

const (
	// EventsLog writes notifications to the service log.
	EventsLog EventsType = "log"
	// EventsRedis publishes notifications on Redis pub/sub channels.
	EventsRedis EventsType = "redis"
	// EventsNone discards notifications.
	EventsNone EventsType = "none"
)

// Config represents the configuration of the service.
type Config struct {
	// Issuer is the "iss" claim of every token and the base of the discovery document.
	Issuer string `mapstructure:"issuer" yaml:"issuer" validate:"required,url"`

	// Domain is the default account domain for requests that carry none.
	Domain string `mapstructure:"domain" yaml:"domain" validate:"required"`

	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Tokens    tokens.Config   `mapstructure:"tokens" yaml:"tokens"`
	Keys      keys.Config     `mapstructure:"keys" yaml:"keys"`
	Storage   storage.Config  `mapstructure:"storage" yaml:"storage"`
	Events    EventsConfig    `mapstructure:"events" yaml:"events"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// SeedFile is an optional YAML document of accounts, applications and
	// clients loaded at startup.
	SeedFile string `mapstructure:"seedFile" yaml:"seedFile"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address           string        `mapstructure:"address" yaml:"address" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"readHeaderTimeout" yaml:"readHeaderTimeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdownTimeout" yaml:"shutdownTimeout" validate:"gt=0"`
}

// APIConfig guards the administrative HTTP routes.
type APIConfig struct {
	// RequireAuth demands a bearer access token on the API key routes.
	RequireAuth bool `mapstructure:"requireAuth" yaml:"requireAuth"`
	// AdminPermission must be among the token's permissions.
	AdminPermission string `mapstructure:"adminPermission" yaml:"adminPermission" validate:"required_if=RequireAuth true"`
}

// EventsConfig configures the notification sink.
type EventsConfig struct {
	Type          EventsType `mapstructure:"type" yaml:"type" validate:"oneof=log redis none"`
	ChannelPrefix string     `mapstructure:"channelPrefix" yaml:"channelPrefix"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP collector; nothing is pushed when empty.
	Endpoint           string        `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure           bool          `mapstructure:"insecure" yaml:"insecure"`
	TracingEnabled     bool          `mapstructure:"tracingEnabled" yaml:"tracingEnabled"`
	SamplingRate       float64       `mapstructure:"samplingRate" yaml:"samplingRate" validate:"gte=0,lte=1"`
	ResourceAttributes string        `mapstructure:"resourceAttributes" yaml:"resourceAttributes"`
	Metrics            MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" validate:"omitempty,startswith=/"`
}

// defaults lists every key with its default. Registering every key, even
// with a zero value, is what lets AutomaticEnv override it.
var defaults = map[string]any{
	"issuer":                        "http://localhost:8080",
	"domain":                        "main",
	"server.address":                ":8080",
	"server.readHeaderTimeout":      10 * time.Second,
	"server.shutdownTimeout":        15 * time.Second,
	"api.requireAuth":               false,
	"api.adminPermission":           "authguard:admin",
	"tokens.audience":               "",
	"tokens.accessTokenTTL":         tokens.DefaultAccessTokenTTL,
	"tokens.idTokenTTL":             tokens.DefaultIDTokenTTL,
	"tokens.refreshTokenTTL":        tokens.DefaultRefreshTokenTTL,
	"tokens.authorizationCodeTTL":   tokens.DefaultAuthorizationCodeTTL,
	"tokens.passwordlessTTL":        tokens.DefaultPasswordlessTTL,
	"tokens.sessionTTL":             tokens.DefaultSessionTTL,
	"tokens.trackingSessionTTL":     tokens.DefaultTrackingSessionTTL,
	"keys.keyDir":                   "",
	"keys.signingKeyFile":           "",
	"keys.fallbackKeyFiles":         []string{},
	"keys.algorithm":                keys.DefaultAlgorithm,
	"storage.principals":            string(storage.TypeMemory),
	"storage.tokens":                string(storage.TypeMemory),
	"storage.expiredRetention":      storage.DefaultExpiredRetention,
	"storage.sqlite.path":           "",
	"storage.redis.addr":            "",
	"storage.redis.username":        "",
	"storage.redis.password":        "",
	"storage.redis.db":              0,
	"storage.redis.keyPrefix":       "authguard:",
	"storage.redis.connectAttempts": 5,
	"events.type":                   string(EventsLog),
	"events.channelPrefix":          "authguard:events:",
	"telemetry.endpoint":            "",
	"telemetry.insecure":            false,
	"telemetry.tracingEnabled":      true,
	"telemetry.samplingRate":        0.05,
	"telemetry.resourceAttributes":  "",
	"telemetry.metrics.enabled":     true,
	"telemetry.metrics.path":        "/metrics",
	"seedFile":                      "",
}

// Load reads the YAML document at path (optional) and applies environment
// overrides and defaults. The result is validated.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Tokens.Issuer = cfg.Issuer
	cfg.Tokens = cfg.Tokens.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration produced by Load with no file and no
// environment overrides.
func Default() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	cfg := &Config{}
	// Decoding the literal defaults above cannot fail.
	_ = v.Unmarshal(cfg)
	cfg.Tokens.Issuer = cfg.Issuer
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
