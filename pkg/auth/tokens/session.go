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

// SessionProvider creates authentication and tracking sessions.
type SessionProvider struct {
	ttl         time.Duration
	trackingTTL time.Duration
	store       storage.SessionStore
	now         func() time.Time
}

// NewSessionProvider creates a SessionProvider.
func NewSessionProvider(cfg Config, store storage.SessionStore) *SessionProvider {
	cfg = cfg.WithDefaults()
	return &SessionProvider{ttl: cfg.SessionTTL, trackingTTL: cfg.TrackingSessionTTL, store: store, now: time.Now}
}

// Create persists a session for account. Tracking sessions get the shorter
// tracking lifetime and can never authenticate.
func (p *SessionProvider) Create(
	ctx context.Context, account *storage.Account, forTracking bool, externalSessionID string,
) (*storage.Session, error) {
	ttl := p.ttl
	if forTracking {
		ttl = p.trackingTTL
	}
	now := p.now()
	session := &storage.Session{
		ID:                NewRecordID(),
		Token:             RandomToken(),
		AccountID:         account.ID,
		Domain:            account.Domain,
		ForTracking:       forTracking,
		ExternalSessionID: externalSessionID,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}
	if err := p.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Generate creates an authentication session and returns its token.
func (p *SessionProvider) Generate(ctx context.Context, account *storage.Account, externalSessionID string) (auth.AuthResponse, error) {
	session, err := p.Create(ctx, account, false, externalSessionID)
	if err != nil {
		return auth.AuthResponse{}, err
	}
	return auth.AuthResponse{
		EntityType: auth.EntityAccount,
		EntityID:   account.ID,
		Type:       auth.TokenTypeSession,
		Token:      session.Token,
		ValidFor:   int64(p.ttl.Seconds()),
	}, nil
}
