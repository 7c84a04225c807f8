// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api serves the token exchange engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	v1 "github.com/stacklok/authguard/pkg/api/v1"
	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/bearer"
	"github.com/stacklok/authguard/pkg/engine"
	"github.com/stacklok/authguard/pkg/logger"
	"github.com/stacklok/authguard/pkg/telemetry"
)

const (
	middlewareTimeout  = 60 * time.Second
	maxRequestBodySize = 1 << 20
)

// NewRouter mounts every route of e on a chi router.
func NewRouter(e *engine.Engine) http.Handler {
	cfg := e.Config()
	tel := e.Telemetry()

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		telemetry.NewHTTPMiddleware(tel.MeterProvider(), tel.TracerProvider()).Handler,
		requestBodySizeLimitMiddleware(maxRequestBodySize),
		requestContextMiddleware,
	)

	routers := map[string]http.Handler{
		"/health":      v1.HealthcheckRouter(e),
		"/version":     v1.VersionRouter(),
		"/v1/exchange": v1.ExchangeRouter(e.Exchanger(), cfg.Domain),
		"/v1/apikeys":  apiKeyGuard(e)(v1.APIKeyRouter(e.APIKeys())),
		"/oidc":        v1.OIDCRouter(e.OIDC()),
		"/.well-known": v1.WellKnownRouter(e, e.Discovery()),
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}

	if handler := tel.MetricsHandler(); handler != nil && cfg.Telemetry.Metrics.Enabled {
		r.Handle(cfg.Telemetry.Metrics.Path, handler)
	}
	return r
}

// apiKeyGuard requires an administrator access token on the API key routes
// when the configuration asks for it.
func apiKeyGuard(e *engine.Engine) func(http.Handler) http.Handler {
	cfg := e.Config()
	if !cfg.API.RequireAuth {
		return bearer.AnonymousMiddleware
	}
	return bearer.NewMiddleware(e.AccessTokens(), cfg.Issuer, cfg.API.AdminPermission).Handler
}

// requestContextMiddleware records the caller on the request context.
func requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithRequestContext(r.Context(), auth.RequestContext{
			Source:    "http",
			IPAddress: r.RemoteAddr,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Serve listens on the configured address and serves the API until ctx is
// cancelled, then shuts down gracefully.
func Serve(ctx context.Context, e *engine.Engine) error {
	listener, err := net.Listen("tcp", e.Config().Server.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.Config().Server.Address, err)
	}
	return ServeListener(ctx, e, listener)
}

// ServeListener serves the API on listener until ctx is cancelled.
func ServeListener(ctx context.Context, e *engine.Engine, listener net.Listener) error {
	cfg := e.Config().Server
	srv := &http.Server{
		// In-flight requests may finish during shutdown.
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
		Handler:           NewRouter(e),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	logger.Infow("starting HTTP server", "address", listener.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		logger.Infow("HTTP server stopped")
		return nil
	})
	return g.Wait()
}
