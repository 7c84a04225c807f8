// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import "time"

// Default lifetimes.
const (
	DefaultAccessTokenTTL       = 15 * time.Minute
	DefaultIDTokenTTL           = 15 * time.Minute
	DefaultRefreshTokenTTL      = 30 * 24 * time.Hour
	DefaultAuthorizationCodeTTL = 5 * time.Minute
	DefaultPasswordlessTTL      = 10 * time.Minute
	DefaultSessionTTL           = 24 * time.Hour
	DefaultTrackingSessionTTL   = 1 * time.Hour
)

// Config holds the issuer identity and the lifetime of every minted credential.
type Config struct {
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// Audience is the "aud" claim when no client id is known.
	Audience string `mapstructure:"audience" yaml:"audience"`

	AccessTokenTTL       time.Duration `mapstructure:"accessTokenTTL" yaml:"accessTokenTTL"`
	IDTokenTTL           time.Duration `mapstructure:"idTokenTTL" yaml:"idTokenTTL"`
	RefreshTokenTTL      time.Duration `mapstructure:"refreshTokenTTL" yaml:"refreshTokenTTL"`
	AuthorizationCodeTTL time.Duration `mapstructure:"authorizationCodeTTL" yaml:"authorizationCodeTTL"`
	PasswordlessTTL      time.Duration `mapstructure:"passwordlessTTL" yaml:"passwordlessTTL"`
	SessionTTL           time.Duration `mapstructure:"sessionTTL" yaml:"sessionTTL"`
	TrackingSessionTTL   time.Duration `mapstructure:"trackingSessionTTL" yaml:"trackingSessionTTL"`
}

// WithDefaults returns a copy of c with every zero TTL replaced by its default.
func (c Config) WithDefaults() Config {
	setDefault(&c.AccessTokenTTL, DefaultAccessTokenTTL)
	setDefault(&c.IDTokenTTL, DefaultIDTokenTTL)
	setDefault(&c.RefreshTokenTTL, DefaultRefreshTokenTTL)
	setDefault(&c.AuthorizationCodeTTL, DefaultAuthorizationCodeTTL)
	setDefault(&c.PasswordlessTTL, DefaultPasswordlessTTL)
	setDefault(&c.SessionTTL, DefaultSessionTTL)
	setDefault(&c.TrackingSessionTTL, DefaultTrackingSessionTTL)
	return c
}

func setDefault(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}
