// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package pkce

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// RFC 7636 Appendix B example.
const (
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestGenerateVerifier(t *testing.T) {
	t.Parallel()

	verifier := GenerateVerifier()

	// RFC 7636: code_verifier must be 43-128 characters
	assert.GreaterOrEqual(t, len(verifier), 43)
	assert.LessOrEqual(t, len(verifier), 128)
	assert.NotEqual(t, verifier, GenerateVerifier())
}

func TestChallengeFromVerifier_RFC7636Example(t *testing.T) {
	t.Parallel()

	assert.Equal(t, rfcChallenge, ChallengeFromVerifier(rfcVerifier))
}

func TestVerify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		verifier  string
		challenge string
		method    string
		want      bool
	}{
		{name: "matching S256", verifier: rfcVerifier, challenge: rfcChallenge, method: MethodS256, want: true},
		{name: "wrong verifier", verifier: "not-the-verifier", challenge: rfcChallenge, method: MethodS256},
		{name: "plain method rejected", verifier: rfcVerifier, challenge: rfcVerifier, method: "plain"},
		{name: "empty verifier", verifier: "", challenge: rfcChallenge, method: MethodS256},
		{name: "empty challenge", verifier: rfcVerifier, challenge: "", method: MethodS256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Verify(tt.verifier, tt.challenge, tt.method))
		})
	}
}
