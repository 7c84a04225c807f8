// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-jose/go-jose/v4"

	apierrors "github.com/stacklok/authguard/pkg/api/errors"
	"github.com/stacklok/authguard/pkg/auth/oidc"
)

// KeySetSource returns the public signing keys.
type KeySetSource interface {
	JWKS(ctx context.Context) (*jose.JSONWebKeySet, error)
}

// WellKnownRouter serves the JWKS and the OpenID provider metadata.
func WellKnownRouter(keySet KeySetSource, discovery *oidc.DiscoveryDocument) http.Handler {
	r := chi.NewRouter()
	r.Get("/jwks.json", apierrors.ErrorHandler(func(w http.ResponseWriter, r *http.Request) error {
		jwks, err := keySet.JWKS(r.Context())
		if err != nil {
			return err
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		apierrors.WriteJSON(w, http.StatusOK, jwks)
		return nil
	}))
	r.Get("/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteJSON(w, http.StatusOK, discovery)
	})
	return r
}
