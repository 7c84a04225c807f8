// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/authguard/pkg/auth/async"
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	autherrors "github.com/stacklok/authguard/pkg/errors"
)

// APIKeyVerifier resolves the application that owns a presented API key.
type APIKeyVerifier struct {
	keys storage.APIKeyStore
	apps storage.ApplicationStore
}

// NewAPIKeyVerifier creates an APIKeyVerifier.
func NewAPIKeyVerifier(keys storage.APIKeyStore, apps storage.ApplicationStore) *APIKeyVerifier {
	return &APIKeyVerifier{keys: keys, apps: apps}
}

// Verify looks the key up by digest and returns its application.
func (v *APIKeyVerifier) Verify(ctx context.Context, key string) (*storage.Application, error) {
	if key == "" {
		return nil, autherrors.NewInvalidTokenError("no api key supplied")
	}

	record, err := v.keys.GetAPIKeyByDigest(ctx, tokens.DigestAPIKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, autherrors.NewInvalidTokenError("api key does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	app, err := v.apps.GetApplication(ctx, record.AppID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, autherrors.NewAppDoesNotExistError("application does not exist", record.AppID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up application: %w", err)
	}
	if !app.Active {
		return nil, autherrors.NewAppDoesNotExistError("application is not active", record.AppID)
	}
	return app, nil
}

// VerifyAsync is the non-blocking form of Verify.
func (v *APIKeyVerifier) VerifyAsync(ctx context.Context, key string) *async.Future[*storage.Application] {
	return async.Go(ctx, func(ctx context.Context) (*storage.Application, error) {
		return v.Verify(ctx, key)
	})
}
