// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package passwords

import (
	"strings"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var fastArgon = &argon2id.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestManager_HashAndVerify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mgr    *Manager
		prefix string
	}{
		{name: "argon2id", mgr: NewManager(WithArgon2Params(fastArgon)), prefix: "$argon2id$"},
		{name: "bcrypt", mgr: NewManager(WithAlgorithm(Bcrypt), WithBcryptCost(bcrypt.MinCost)), prefix: "$2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hash, err := tt.mgr.Hash("s3cret")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, tt.prefix))

			ok, err := tt.mgr.Verify("s3cret", hash)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = tt.mgr.Verify("wrong", hash)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestManager_VerifiesEitherScheme(t *testing.T) {
	t.Parallel()

	argonMgr := NewManager(WithArgon2Params(fastArgon))
	bcryptMgr := NewManager(WithAlgorithm(Bcrypt), WithBcryptCost(bcrypt.MinCost))

	bcryptHash, err := bcryptMgr.Hash("pw")
	require.NoError(t, err)

	ok, err := argonMgr.Verify("pw", bcryptHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_Verify_UnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := NewManager().Verify("pw", "plaintext")
	assert.ErrorIs(t, err, ErrUnknownHashFormat)
}

func TestManager_Verify_CorruptHash(t *testing.T) {
	t.Parallel()

	_, err := NewManager().Verify("pw", "$argon2id$garbage")
	assert.Error(t, err)
}

func TestManager_Hash_UnsupportedAlgorithm(t *testing.T) {
	t.Parallel()

	_, err := NewManager(WithAlgorithm("md5")).Hash("pw")
	assert.Error(t, err)
}
