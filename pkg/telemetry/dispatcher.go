// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/auth/exchange"
	autherrors "github.com/stacklok/authguard/pkg/errors"
)

const instrumentationName = "github.com/stacklok/authguard/pkg/telemetry"

// ExchangeDurationBuckets are the histogram boundaries, in seconds, for
// exchange durations. Exchanges hash passwords, so the range reaches seconds.
var ExchangeDurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// MonitorDispatcher decorates next so each exchange records a span named
// "exchange {from}-{to}" and the authguard_exchange_* metrics.
func MonitorDispatcher(
	next exchange.Exchanger,
	meterProvider metric.MeterProvider,
	tracerProvider trace.TracerProvider,
) (exchange.Exchanger, error) {
	meter := meterProvider.Meter(instrumentationName)

	requestsTotal, err := meter.Int64Counter(
		"authguard_exchange_requests", // the exporter adds the _total suffix
		metric.WithDescription("Total number of exchange requests"))
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}
	errorsTotal, err := meter.Int64Counter(
		"authguard_exchange_errors",
		metric.WithDescription("Total number of failed exchanges by failure kind"))
	if err != nil {
		return nil, fmt.Errorf("failed to create errors counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		"authguard_exchange_duration",
		metric.WithDescription("Duration of exchanges in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ExchangeDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &monitoredExchanger{
		next:          next,
		tracer:        tracerProvider.Tracer(instrumentationName),
		requestsTotal: requestsTotal,
		errorsTotal:   errorsTotal,
		duration:      duration,
	}, nil
}

type monitoredExchanger struct {
	next   exchange.Exchanger
	tracer trace.Tracer

	requestsTotal metric.Int64Counter
	errorsTotal   metric.Int64Counter
	duration      metric.Float64Histogram
}

var _ exchange.Exchanger = (*monitoredExchanger)(nil)

// Exchange implements exchange.Exchanger.
func (m *monitoredExchanger) Exchange(
	ctx context.Context, req auth.AuthRequest, restrictions *auth.TokenRestrictions, from, to string,
) (_ auth.AuthResponse, retErr error) {
	ctx, done := m.record(ctx, from, to, &retErr)
	defer done()
	return m.next.Exchange(ctx, req, restrictions, from, to)
}

// SupportsExchange implements exchange.Exchanger.
func (m *monitoredExchanger) SupportsExchange(from, to string) bool {
	return m.next.SupportsExchange(from, to)
}

// record starts the span and returns a function, to be deferred, that
// records the outcome and ends it.
func (m *monitoredExchanger) record(ctx context.Context, from, to string, err *error) (context.Context, func()) {
	pairAttrs := []attribute.KeyValue{
		attrExchangeFrom.String(from),
		attrExchangeTo.String(to),
	}
	ctx, span := m.tracer.Start(ctx, "exchange "+exchange.Key(from, to),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(pairAttrs...),
	)

	start := time.Now()
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(pairAttrs...))

	return ctx, func() {
		m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(pairAttrs...))
		if *err != nil {
			kind := autherrors.TypeOf(*err)
			if kind == "" {
				kind = autherrors.ErrInternal
			}
			m.errorsTotal.Add(ctx, 1, metric.WithAttributes(append(pairAttrs, attrErrorType.String(kind))...))
			span.RecordError(*err)
			span.SetAttributes(attrErrorType.String(kind))
			span.SetStatus(codes.Error, kind)
		}
		span.End()
	}
}
