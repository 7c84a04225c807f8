// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package passwords hashes and verifies account passwords. Stored hashes are
// self-describing: the verifier is picked from the hash prefix, so bcrypt and
// argon2id hashes can coexist in one credential store.
package passwords

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm names a supported hashing scheme.
type Algorithm string

const (
	// Argon2ID is the default for new hashes.
	Argon2ID Algorithm = "argon2id"
	// Bcrypt is accepted for verification and may be selected for new hashes.
	Bcrypt Algorithm = "bcrypt"
)

// ErrUnknownHashFormat is returned when a stored hash matches no known scheme.
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// Verifier checks a plaintext password against a stored hash.
type Verifier interface {
	Verify(plain, hash string) (bool, error)
}

// Manager hashes with a configured algorithm and verifies any supported hash.
type Manager struct {
	algorithm   Algorithm
	bcryptCost  int
	argonParams *argon2id.Params
}

// Option configures a Manager.
type Option func(*Manager)

// WithAlgorithm selects the algorithm used by Hash.
func WithAlgorithm(a Algorithm) Option {
	return func(m *Manager) {
		m.algorithm = a
	}
}

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(m *Manager) {
		m.bcryptCost = cost
	}
}

// WithArgon2Params overrides argon2id.DefaultParams.
func WithArgon2Params(p *argon2id.Params) Option {
	return func(m *Manager) {
		m.argonParams = p
	}
}

// NewManager returns a Manager hashing with argon2id by default.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		algorithm:   Argon2ID,
		bcryptCost:  bcrypt.DefaultCost,
		argonParams: argon2id.DefaultParams,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hash hashes plain with the configured algorithm.
func (m *Manager) Hash(plain string) (string, error) {
	switch m.algorithm {
	case Bcrypt:
		b, err := bcrypt.GenerateFromPassword([]byte(plain), m.bcryptCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt hash: %w", err)
		}
		return string(b), nil
	case Argon2ID:
		h, err := argon2id.CreateHash(plain, m.argonParams)
		if err != nil {
			return "", fmt.Errorf("argon2id hash: %w", err)
		}
		return h, nil
	default:
		return "", fmt.Errorf("unsupported password algorithm %q", m.algorithm)
	}
}

// Verify reports whether plain matches hash. A mismatch is (false, nil);
// an error means the hash itself could not be evaluated.
func (*Manager) Verify(plain, hash string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		ok, err := argon2id.ComparePasswordAndHash(plain, hash)
		if err != nil {
			return false, fmt.Errorf("argon2id compare: %w", err)
		}
		return ok, nil
	case strings.HasPrefix(hash, "$2"):
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("bcrypt compare: %w", err)
	default:
		return false, ErrUnknownHashFormat
	}
}

var _ Verifier = (*Manager)(nil)
