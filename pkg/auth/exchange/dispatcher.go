// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/async"
	autherrors "github.com/stacklok/authguard/pkg/errors"
	"github.com/stacklok/authguard/pkg/logger"
)

// Dispatcher routes exchanges to handlers. The routing table is built once
// by NewDispatcher and is read-only afterwards.
type Dispatcher struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for failure reporting.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher builds the routing table. Registering two handlers for the
// same pair is an error.
func NewDispatcher(handlers []Handler, opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]Handler, len(handlers)),
		logger:   logger.Get(),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, h := range handlers {
		if h == nil {
			return nil, errors.New("nil exchange handler")
		}
		key := Key(h.From(), h.To())
		if _, exists := d.handlers[key]; exists {
			return nil, fmt.Errorf("duplicate exchange handler for %s to %s", h.From(), h.To())
		}
		d.handlers[key] = h
	}
	return d, nil
}

// Exchange implements Exchanger.
func (d *Dispatcher) Exchange(
	ctx context.Context, req auth.AuthRequest, restrictions *auth.TokenRestrictions, from, to string,
) (resp auth.AuthResponse, err error) {
	h, ok := d.handlers[Key(from, to)]
	if !ok {
		return auth.AuthResponse{}, autherrors.NewUnknownExchangeError(from, to)
	}
	if restrictions != nil {
		req = req.WithRestrictions(restrictions)
	}

	defer func() {
		if r := recover(); r != nil {
			err = d.internal(from, to, fmt.Errorf("exchange handler panicked: %v", r))
			resp = auth.AuthResponse{}
		}
	}()

	resp, err = h.Exchange(ctx, req)
	if err == nil {
		return resp, nil
	}

	if autherrors.IsExpected(err) {
		d.logger.Debug("exchange rejected",
			"from", from,
			"to", to,
			"error_type", autherrors.TypeOf(err),
			"error", err)
		return auth.AuthResponse{}, err
	}
	return auth.AuthResponse{}, d.internal(from, to, err)
}

func (d *Dispatcher) internal(from, to string, cause error) error {
	if autherrors.IsInternal(cause) {
		d.logger.Error("exchange failed", "from", from, "to", to, "error", cause)
		return cause
	}
	d.logger.Error("exchange failed unexpectedly", "from", from, "to", to, "error", cause)
	return autherrors.NewInternalError(fmt.Sprintf("exchange %s to %s failed", from, to), cause)
}

// ExchangeAsync is the non-blocking form of Exchange.
func (d *Dispatcher) ExchangeAsync(
	ctx context.Context, req auth.AuthRequest, restrictions *auth.TokenRestrictions, from, to string,
) *async.Future[auth.AuthResponse] {
	return Async(ctx, d, req, restrictions, from, to)
}

// SupportsExchange implements Exchanger.
func (d *Dispatcher) SupportsExchange(from, to string) bool {
	_, ok := d.handlers[Key(from, to)]
	return ok
}

// Exchanges returns the sorted routing keys.
func (d *Dispatcher) Exchanges() []string {
	return slices.Sorted(maps.Keys(d.handlers))
}

var _ Exchanger = (*Dispatcher)(nil)
