// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/authguard/pkg/api/errors"
	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/storage"
)

// APIKeyService generates and validates application API keys.
type APIKeyService interface {
	Generate(ctx context.Context, appID string) (auth.AuthResponse, error)
	Validate(ctx context.Context, key string) (*storage.Application, error)
}

// APIKeyRoutes exposes the API key service.
type APIKeyRoutes struct {
	service APIKeyService
}

// APIKeyRouter creates the API key routes.
func APIKeyRouter(service APIKeyService) http.Handler {
	routes := APIKeyRoutes{service: service}

	r := chi.NewRouter()
	r.Post("/", apierrors.ErrorHandler(routes.generate))
	r.Post("/validate", apierrors.ErrorHandler(routes.validate))
	return r
}

type generateKeyRequest struct {
	AppID string `json:"appId" validate:"required"`
}

type validateKeyRequest struct {
	Key string `json:"key" validate:"required"`
}

type applicationResponse struct {
	ID              string   `json:"id"`
	Domain          string   `json:"domain"`
	Name            string   `json:"name"`
	ParentAccountID string   `json:"parentAccountId,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	Permissions     []string `json:"permissions,omitempty"`
}

func (a *APIKeyRoutes) generate(w http.ResponseWriter, r *http.Request) error {
	var req generateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	resp, err := a.service.Generate(r.Context(), req.AppID)
	if err != nil {
		return err
	}
	apierrors.WriteJSON(w, http.StatusCreated, resp)
	return nil
}

func (a *APIKeyRoutes) validate(w http.ResponseWriter, r *http.Request) error {
	var req validateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	app, err := a.service.Validate(r.Context(), req.Key)
	if err != nil {
		return err
	}
	apierrors.WriteJSON(w, http.StatusOK, applicationResponse{
		ID:              app.ID,
		Domain:          app.Domain,
		Name:            app.Name,
		ParentAccountID: app.ParentAccountID,
		Roles:           app.Roles,
		Permissions:     app.Permissions,
	})
	return nil
}
