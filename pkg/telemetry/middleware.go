// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware instruments HTTP requests served by a chi router.
type HTTPMiddleware struct {
	tracer          trace.Tracer
	propagator      propagation.TextMapPropagator
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
}

// NewHTTPMiddleware creates an HTTPMiddleware. Incoming trace context is
// extracted with the global propagator.
func NewHTTPMiddleware(meterProvider metric.MeterProvider, tracerProvider trace.TracerProvider) *HTTPMiddleware {
	meter := meterProvider.Meter(instrumentationName)

	requestCounter, _ := meter.Int64Counter(
		"authguard_http_requests",
		metric.WithDescription("Total number of HTTP requests"),
	)
	requestDuration, _ := meter.Float64Histogram(
		"authguard_http_request_duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
	)

	return &HTTPMiddleware{
		tracer:          tracerProvider.Tracer(instrumentationName),
		propagator:      otel.GetTextMapPropagator(),
		requestCounter:  requestCounter,
		requestDuration: requestDuration,
	}
}

// Handler wraps next.
func (m *HTTPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := m.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := m.tracer.Start(ctx, r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attrHTTPMethod.String(r.Method),
				attrClientAddress.String(r.RemoteAddr),
			),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		// The route pattern is only known once chi has matched the request.
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		span.SetName(r.Method + " " + route)
		span.SetAttributes(attrHTTPRoute.String(route), attrHTTPStatus.Int(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		attrs := metric.WithAttributes(
			attrHTTPMethod.String(r.Method),
			attrHTTPRoute.String(route),
			attrHTTPStatus.Int(status),
		)
		m.requestCounter.Add(ctx, 1, attrs)
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	})
}
