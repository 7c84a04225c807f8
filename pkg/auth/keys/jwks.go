// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// JWKS builds the public key set served to relying parties.
func JWKS(ctx context.Context, provider KeyProvider) (*jose.JSONWebKeySet, error) {
	pubKeys, err := provider.PublicKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list public keys: %w", err)
	}

	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(pubKeys))}
	for _, k := range pubKeys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.PublicKey,
			KeyID:     k.KeyID,
			Algorithm: k.Algorithm,
			Use:       "sig",
		})
	}
	return set, nil
}
