// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pkce implements the S256 Proof Key for Code Exchange checks (RFC 7636)
// used when an authorization code is redeemed.
package pkce

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// MethodS256 is the only challenge method accepted.
const MethodS256 = "S256"

// GenerateVerifier returns a random code_verifier per RFC 7636 Section 4.1:
// 43 characters from the base64url alphabet.
// It panics if crypto/rand fails.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// ChallengeFromVerifier computes BASE64URL(SHA256(verifier)) per RFC 7636 Section 4.2.
func ChallengeFromVerifier(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// Verify reports whether verifier satisfies challenge under method.
// Only S256 is supported; any other method fails.
func Verify(verifier, challenge, method string) bool {
	if method != MethodS256 || verifier == "" || challenge == "" {
		return false
	}
	computed := ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
