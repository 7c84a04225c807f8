// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// KeyProvider provides signing keys for JWT operations.
type KeyProvider interface {
	// SigningKey returns the current signing key.
	SigningKey(ctx context.Context) (*SigningKeyData, error)

	// PublicKeys returns every key that verifiers should accept.
	// During rotation this includes keys that no longer sign.
	PublicKeys(ctx context.Context) ([]*PublicKeyData, error)
}

// FileProvider loads signing keys from PEM files in a directory.
// Keys are loaded once at construction time; changes require a restart.
type FileProvider struct {
	signingKey *SigningKeyData
	allKeys    []*SigningKeyData
}

// NewFileProvider loads Config.SigningKeyFile for signing and
// Config.FallbackKeyFiles for verification only.
func NewFileProvider(cfg Config) (*FileProvider, error) {
	if cfg.SigningKeyFile == "" {
		return nil, errors.New("signing key file is required")
	}

	signingKey, err := loadKeyFromFile(filepath.Join(cfg.KeyDir, cfg.SigningKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	allKeys := []*SigningKeyData{signingKey}
	for _, filename := range cfg.FallbackKeyFiles {
		key, err := loadKeyFromFile(filepath.Join(cfg.KeyDir, filename))
		if err != nil {
			return nil, fmt.Errorf("failed to load fallback key %s: %w", filename, err)
		}
		allKeys = append(allKeys, key)
	}

	return &FileProvider{
		signingKey: signingKey,
		allKeys:    allKeys,
	}, nil
}

func loadKeyFromFile(keyPath string) (*SigningKeyData, error) {
	signer, err := LoadSigningKey(keyPath)
	if err != nil {
		return nil, err
	}
	return newSigningKeyData(signer, "")
}

func newSigningKeyData(signer crypto.Signer, algorithm string) (*SigningKeyData, error) {
	if algorithm == "" {
		alg, err := AlgorithmFor(signer)
		if err != nil {
			return nil, err
		}
		algorithm = alg
	}
	keyID, err := DeriveKeyID(signer)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key ID: %w", err)
	}
	return &SigningKeyData{
		KeyID:     keyID,
		Algorithm: algorithm,
		Key:       signer,
		CreatedAt: time.Now(),
	}, nil
}

// SigningKey returns a copy of the primary signing key.
func (p *FileProvider) SigningKey(_ context.Context) (*SigningKeyData, error) {
	k := *p.signingKey
	return &k, nil
}

// PublicKeys returns public keys for the signing key and every fallback key.
func (p *FileProvider) PublicKeys(_ context.Context) ([]*PublicKeyData, error) {
	pubKeys := make([]*PublicKeyData, 0, len(p.allKeys))
	for _, key := range p.allKeys {
		pubKeys = append(pubKeys, publicKeyData(key))
	}
	return pubKeys, nil
}

// GeneratingProvider generates an ephemeral key on first access.
// Generated keys are lost on restart, invalidating all issued tokens.
type GeneratingProvider struct {
	algorithm string
	mu        sync.Mutex
	key       *SigningKeyData
}

// NewGeneratingProvider creates a provider that lazily generates a key.
// If algorithm is empty, DefaultAlgorithm is used.
func NewGeneratingProvider(algorithm string) *GeneratingProvider {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	return &GeneratingProvider{algorithm: algorithm}
}

// SigningKey returns the signing key, generating one if needed.
func (p *GeneratingProvider) SigningKey(_ context.Context) (*SigningKeyData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key == nil {
		signer, err := GenerateKey(p.algorithm)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		key, err := newSigningKeyData(signer, p.algorithm)
		if err != nil {
			return nil, err
		}

		slog.Warn("generated ephemeral signing key - tokens will be invalid after restart",
			"algorithm", key.Algorithm,
			"key_id", key.KeyID,
		)
		p.key = key
	}

	k := *p.key
	return &k, nil
}

// PublicKeys returns the public key, generating the signing key if needed.
func (p *GeneratingProvider) PublicKeys(ctx context.Context) ([]*PublicKeyData, error) {
	key, err := p.SigningKey(ctx)
	if err != nil {
		return nil, err
	}
	return []*PublicKeyData{publicKeyData(key)}, nil
}

func publicKeyData(key *SigningKeyData) *PublicKeyData {
	return &PublicKeyData{
		KeyID:     key.KeyID,
		Algorithm: key.Algorithm,
		PublicKey: key.Key.Public(),
		CreatedAt: key.CreatedAt,
	}
}

// Compile-time interface checks.
var (
	_ KeyProvider = (*FileProvider)(nil)
	_ KeyProvider = (*GeneratingProvider)(nil)
)
