// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

// Config selects where signing keys come from.
type Config struct {
	// KeyDir is the directory containing PEM-encoded private key files.
	// All key filenames are relative to this directory.
	KeyDir string `mapstructure:"keyDir" yaml:"keyDir"`

	// SigningKeyFile is the key used to sign new tokens.
	// If both KeyDir and SigningKeyFile are empty, an ephemeral key is generated.
	SigningKeyFile string `mapstructure:"signingKeyFile" yaml:"signingKeyFile"`

	// FallbackKeyFiles are published in the JWKS but never sign.
	// To rotate: promote the new key to SigningKeyFile, move the old one here,
	// and drop it once every token it signed has expired.
	FallbackKeyFiles []string `mapstructure:"fallbackKeyFiles" yaml:"fallbackKeyFiles"`

	// Algorithm for the ephemeral key. Defaults to DefaultAlgorithm.
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm" validate:"omitempty,oneof=ES256 ES384 ES512"`
}

// NewProviderFromConfig creates a KeyProvider based on the configuration.
//
// Behavior:
//   - If KeyDir is set: load keys from the directory (SigningKeyFile required)
//   - Otherwise: return a GeneratingProvider (ephemeral key, development only)
func NewProviderFromConfig(cfg Config) (KeyProvider, error) {
	if cfg.KeyDir != "" {
		return NewFileProvider(cfg)
	}
	return NewGeneratingProvider(cfg.Algorithm), nil
}
