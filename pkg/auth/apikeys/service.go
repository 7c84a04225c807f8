// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package apikeys issues and validates application API keys. Issuance goes
// through the app→apiKey exchange so it is observed like any other mint.
package apikeys

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/async"
	"github.com/stacklok/authguard/pkg/auth/exchange"
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/verifier"
	autherrors "github.com/stacklok/authguard/pkg/errors"
)

// Service generates and validates API keys.
type Service struct {
	exchanger exchange.Exchanger
	apps          storage.ApplicationStore
	verifier  *verifier.APIKeyVerifier
}

// NewService creates a Service.
func NewService(exchanger exchange.Exchanger, apps storage.ApplicationStore, keys *verifier.APIKeyVerifier) *Service {
	return &Service{exchanger: exchanger, apps: apps, verifier: keys}
}

// Generate mints a new API key for appID. The plaintext key is only ever
// returned here.
func (s *Service) Generate(ctx context.Context, appID string) (auth.AuthResponse, error) {
	app, err := s.apps.GetApplication(ctx, appID)
	if errors.Is(err, storage.ErrNotFound) {
		return auth.AuthResponse{}, autherrors.NewAppDoesNotExistError(
			fmt.Sprintf("application %s does not exist", appID), appID)
	}
	if err != nil {
		return auth.AuthResponse{}, fmt.Errorf("failed to look up application: %w", err)
	}
	if !app.Active {
		return auth.AuthResponse{}, autherrors.NewAppDoesNotExistError("application is not active", appID)
	}

	return s.exchanger.Exchange(ctx, auth.AuthRequest{Identifier: app.ID, Domain: app.Domain}, nil,
		auth.TokenTypeApp, auth.TokenTypeAPIKey)
}

// GenerateAsync is the non-blocking form of Generate.
func (s *Service) GenerateAsync(ctx context.Context, appID string) *async.Future[auth.AuthResponse] {
	return async.Go(ctx, func(ctx context.Context) (auth.AuthResponse, error) {
		return s.Generate(ctx, appID)
	})
}

// Validate returns the application owning key.
func (s *Service) Validate(ctx context.Context, key string) (*storage.Application, error) {
	return s.verifier.Verify(ctx, key)
}
