// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/storage"
)

// APIKeyProvider mints API keys for applications. Only the digest of a key
// is stored; the plaintext is returned once and never again.
type APIKeyProvider struct {
	store storage.APIKeyStore
	now   func() time.Time
}

// NewAPIKeyProvider creates an APIKeyProvider.
func NewAPIKeyProvider(store storage.APIKeyStore) *APIKeyProvider {
	return &APIKeyProvider{store: store, now: time.Now}
}

// Generate mints and persists a key for app.
func (p *APIKeyProvider) Generate(ctx context.Context, app *storage.Application) (auth.AuthResponse, error) {
	key := APIKeyPrefix + RandomToken()
	record := &storage.APIKey{
		ID:        NewRecordID(),
		KeyDigest: DigestAPIKey(key),
		AppID:     app.ID,
		Domain:    app.Domain,
		CreatedAt: p.now(),
	}
	if err := p.store.CreateAPIKey(ctx, record); err != nil {
		return auth.AuthResponse{}, fmt.Errorf("failed to store api key: %w", err)
	}

	return auth.AuthResponse{
		EntityType: auth.EntityApplication,
		EntityID:   app.ID,
		Type:       auth.ResponseTypeAPIKey,
		Token:      key,
	}, nil
}
