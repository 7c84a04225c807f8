// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keys manages the keys that sign access and ID tokens.
// It handles loading keys from PEM files, generating ephemeral keys, and
// publishing the public halves as a JWKS document.
package keys

import (
	"crypto"
	"time"
)

// DefaultAlgorithm is the signing algorithm for generated keys.
const DefaultAlgorithm = "ES256"

// SigningKeyData is a signing key with its metadata.
// It holds private key material and must never be exposed externally.
type SigningKeyData struct {
	// KeyID is the RFC 7638 thumbprint of the public key, used as the JWT "kid".
	KeyID string

	// Algorithm is the JWS algorithm, e.g. "ES256".
	Algorithm string

	Key       crypto.Signer
	CreatedAt time.Time
}

// PublicKeyData is the public portion of a signing key, safe to publish.
type PublicKeyData struct {
	KeyID     string
	Algorithm string
	PublicKey crypto.PublicKey
	CreatedAt time.Time
}
