// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/authguard/pkg/api/errors"
	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/exchange"
)

// ExchangeRoutes exposes the dispatcher.
type ExchangeRoutes struct {
	exchanger     exchange.Exchanger
	defaultDomain string
}

// ExchangeRouter creates the exchange routes. Requests without a domain
// are run in defaultDomain.
func ExchangeRouter(exchanger exchange.Exchanger, defaultDomain string) http.Handler {
	routes := ExchangeRoutes{exchanger: exchanger, defaultDomain: defaultDomain}

	r := chi.NewRouter()
	r.Post("/", apierrors.ErrorHandler(routes.exchange))
	r.Get("/{from}/{to}", routes.supports)
	return r
}

type exchangeRequest struct {
	From    string           `json:"from" validate:"required"`
	To      string           `json:"to" validate:"required"`
	Request auth.AuthRequest `json:"request"`
}

type supportsResponse struct {
	Supported bool `json:"supported"`
}

// exchange runs one exchange and answers with the minted AuthResponse.
func (e *ExchangeRoutes) exchange(w http.ResponseWriter, r *http.Request) error {
	var body exchangeRequest
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	req := body.Request
	if req.Domain == "" {
		req.Domain = e.defaultDomain
	}

	resp, err := e.exchanger.Exchange(r.Context(), req, nil, body.From, body.To)
	if err != nil {
		return err
	}
	apierrors.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (e *ExchangeRoutes) supports(w http.ResponseWriter, r *http.Request) {
	supported := e.exchanger.SupportsExchange(chi.URLParam(r, "from"), chi.URLParam(r, "to"))
	apierrors.WriteJSON(w, http.StatusOK, supportsResponse{Supported: supported})
}
