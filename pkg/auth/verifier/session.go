// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/async"
	"github.com/stacklok/authguard/pkg/auth/storage"
	autherrors "github.com/stacklok/authguard/pkg/errors"
)

// SessionVerifier validates session tokens.
type SessionVerifier struct {
	store storage.SessionStore
	now   func() time.Time
}

// NewSessionVerifier creates a SessionVerifier.
func NewSessionVerifier(store storage.SessionStore) *SessionVerifier {
	return &SessionVerifier{store: store, now: time.Now}
}

// Verify returns the session for token. Tracking sessions never verify.
func (v *SessionVerifier) Verify(ctx context.Context, token string) (*storage.Session, error) {
	session, err := v.store.GetSessionByToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, autherrors.NewInvalidTokenError("session does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if session.ForTracking {
		return nil, autherrors.NewInvalidTokenError("tracking sessions cannot authenticate")
	}
	if session.Expired(v.now()) {
		return nil, autherrors.NewExpiredTokenError("session has expired", auth.EntityAccount, session.AccountID)
	}
	return session, nil
}

// VerifyAsync is the non-blocking form of Verify.
func (v *SessionVerifier) VerifyAsync(ctx context.Context, token string) *async.Future[*storage.Session] {
	return async.Go(ctx, func(ctx context.Context) (*storage.Session, error) {
		return v.Verify(ctx, token)
	})
}
