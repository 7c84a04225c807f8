// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires OpenTelemetry tracing and metrics for authguard.
//
// A Provider owns the tracer and meter providers, an optional OTLP export
// pipeline and the Prometheus exposition handler. MonitorDispatcher
// decorates an exchange.Exchanger so every exchange emits a span and the
// authguard_exchange_* metrics; HTTPMiddleware does the same for the HTTP
// adapter.
package telemetry
