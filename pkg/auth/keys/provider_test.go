// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeECKey writes a fresh P-256 key as SEC1 PEM and returns the filename.
func writeECKey(t *testing.T, dir, filename string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), data, 0600))
	return filename
}

func TestFileProvider(t *testing.T) {
	t.Parallel()

	t.Run("loads valid EC key", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		keyFile := writeECKey(t, dir, "signing.pem")

		provider, err := NewFileProvider(Config{KeyDir: dir, SigningKeyFile: keyFile})
		require.NoError(t, err)

		key, err := provider.SigningKey(t.Context())
		require.NoError(t, err)
		assert.NotEmpty(t, key.KeyID)
		assert.Equal(t, "ES256", key.Algorithm)

		pubKeys, err := provider.PublicKeys(t.Context())
		require.NoError(t, err)
		require.Len(t, pubKeys, 1)
		assert.Equal(t, key.KeyID, pubKeys[0].KeyID)
	})

	t.Run("fails for non-existent file", func(t *testing.T) {
		t.Parallel()
		_, err := NewFileProvider(Config{KeyDir: "/nonexistent", SigningKeyFile: "key.pem"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load signing key")
	})

	t.Run("fails when signing key file is empty", func(t *testing.T) {
		t.Parallel()
		_, err := NewFileProvider(Config{KeyDir: "/some/dir"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "signing key file is required")
	})

	t.Run("publishes fallback keys but signs with the primary", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		signingFile := writeECKey(t, dir, "signing.pem")
		old1 := writeECKey(t, dir, "old1.pem")
		old2 := writeECKey(t, dir, "old2.pem")

		provider, err := NewFileProvider(Config{
			KeyDir:           dir,
			SigningKeyFile:   signingFile,
			FallbackKeyFiles: []string{old1, old2},
		})
		require.NoError(t, err)

		signingKey, err := provider.SigningKey(t.Context())
		require.NoError(t, err)

		pubKeys, err := provider.PublicKeys(t.Context())
		require.NoError(t, err)
		require.Len(t, pubKeys, 3)
		assert.Equal(t, signingKey.KeyID, pubKeys[0].KeyID)

		seen := make(map[string]bool)
		for _, pk := range pubKeys {
			assert.False(t, seen[pk.KeyID], "duplicate key ID found")
			seen[pk.KeyID] = true
		}
	})

	t.Run("fails when fallback key file does not exist", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		signingFile := writeECKey(t, dir, "signing.pem")

		_, err := NewFileProvider(Config{
			KeyDir:           dir,
			SigningKeyFile:   signingFile,
			FallbackKeyFiles: []string{"nonexistent.pem"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load fallback key")
	})
}

func TestGeneratingProvider(t *testing.T) {
	t.Parallel()

	t.Run("defaults to ES256", func(t *testing.T) {
		t.Parallel()
		provider := NewGeneratingProvider("")

		key, err := provider.SigningKey(t.Context())
		require.NoError(t, err)
		assert.Equal(t, DefaultAlgorithm, key.Algorithm)
		assert.NotEmpty(t, key.KeyID)
	})

	t.Run("returns the same key every time", func(t *testing.T) {
		t.Parallel()
		provider := NewGeneratingProvider("ES384")

		var wg sync.WaitGroup
		ids := make([]string, 10)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key, err := provider.SigningKey(t.Context())
				if err == nil {
					ids[i] = key.KeyID
				}
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}

		pubKeys, err := provider.PublicKeys(t.Context())
		require.NoError(t, err)
		require.Len(t, pubKeys, 1)
		assert.Equal(t, ids[0], pubKeys[0].KeyID)
		assert.Equal(t, "ES384", pubKeys[0].Algorithm)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		t.Parallel()
		_, err := NewGeneratingProvider("HS256").SigningKey(t.Context())
		assert.Error(t, err)
	})
}

func TestNewProviderFromConfig(t *testing.T) {
	t.Parallel()

	provider, err := NewProviderFromConfig(Config{})
	require.NoError(t, err)
	assert.IsType(t, &GeneratingProvider{}, provider)

	dir := t.TempDir()
	keyFile := writeECKey(t, dir, "signing.pem")
	provider, err = NewProviderFromConfig(Config{KeyDir: dir, SigningKeyFile: keyFile})
	require.NoError(t, err)
	assert.IsType(t, &FileProvider{}, provider)

	_, err = NewProviderFromConfig(Config{KeyDir: dir})
	assert.Error(t, err)
}
