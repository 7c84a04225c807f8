// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package exchange converts a credential of one declared token type into a
// credential of another. Each conversion is a Handler registered under its
// (from, to) pair; the Dispatcher routes requests to handlers and is the
// single place where expected and unexpected failures are told apart.
package exchange

//go:generate mockgen -destination=mocks/mock_exchange.go -package=mocks -source=exchange.go Handler,Exchanger

import (
	"context"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/async"
)

// Handler performs one exchange. From and To are used only to index the
// handler in the routing table.
type Handler interface {
	From() string
	To() string
	Exchange(ctx context.Context, req auth.AuthRequest) (auth.AuthResponse, error)
}

// Exchanger is the entry point consumers use to obtain or validate credentials.
type Exchanger interface {
	// Exchange converts req from one token type to another. A non-nil
	// restrictions replaces whatever restrictions req carries.
	Exchange(
		ctx context.Context, req auth.AuthRequest, restrictions *auth.TokenRestrictions, from, to string,
	) (auth.AuthResponse, error)

	// SupportsExchange reports whether a handler is registered for the pair.
	SupportsExchange(from, to string) bool
}

// Key returns the routing key of a (from, to) pair.
func Key(from, to string) string {
	return from + "-" + to
}

// Async runs an exchange on its own goroutine.
func Async(
	ctx context.Context, ex Exchanger, req auth.AuthRequest, restrictions *auth.TokenRestrictions, from, to string,
) *async.Future[auth.AuthResponse] {
	return async.Go(ctx, func(ctx context.Context) (auth.AuthResponse, error) {
		return ex.Exchange(ctx, req, restrictions, from, to)
	})
}

type pair struct {
	from string
	to   string
}

func (p pair) From() string { return p.from }
func (p pair) To() string   { return p.to }
