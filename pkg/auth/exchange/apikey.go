// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	autherrors "github.com/stacklok/authguard/pkg/errors"
	"github.com/stacklok/authguard/pkg/events"
)

// AppToAPIKey mints an API key for the application named by
// AuthRequest.Identifier. The caller is expected to have authorized the
// request already; no credential is verified.
type AppToAPIKey struct {
	pair
	apps      storage.ApplicationStore
	keys      *tokens.APIKeyProvider
	publisher events.Publisher
}

// NewAppToAPIKey creates the app→apiKey handler.
func NewAppToAPIKey(apps storage.ApplicationStore, keys *tokens.APIKeyProvider, publisher events.Publisher) *AppToAPIKey {
	return &AppToAPIKey{
		pair:      pair{auth.TokenTypeApp, auth.TokenTypeAPIKey},
		apps:      apps,
		keys:      keys,
		publisher: publisher,
	}
}

// Exchange implements Handler.
func (h *AppToAPIKey) Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error) {
	app, err := h.apps.GetApplication(ctx, req.Identifier)
	if errors.Is(err, storage.ErrNotFound) {
		return auth.AuthResponse{}, autherrors.NewAppDoesNotExistError(
			fmt.Sprintf("application %s does not exist", req.Identifier), req.Identifier)
	}
	if err != nil {
		return auth.AuthResponse{}, fmt.Errorf("failed to look up application: %w", err)
	}

	resp, err := h.keys.Generate(ctx, app)
	if err != nil {
		return auth.AuthResponse{}, err
	}
	h.publisher.Publish(ctx, events.ChannelAPIKeys, events.Message{
		Event:      events.EventAPIKeyIssued,
		EntityType: auth.EntityApplication,
		EntityID:   app.ID,
	})
	return resp, nil
}
