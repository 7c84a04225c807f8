// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans and metrics.
var (
	attrExchangeFrom  = attribute.Key("authguard.exchange.from")
	attrExchangeTo    = attribute.Key("authguard.exchange.to")
	attrErrorType     = attribute.Key("error.type")
	attrHTTPMethod    = attribute.Key("http.request.method")
	attrHTTPRoute     = attribute.Key("http.route")
	attrHTTPStatus    = attribute.Key("http.response.status_code")
	attrClientAddress = attribute.Key("client.address")
)

// ParseResourceAttributes parses a comma-separated list of key=value pairs,
// e.g. "deployment=prod,region=eu-west-1", into resource attributes sorted
// by key.
func ParseResourceAttributes(input string) ([]attribute.KeyValue, error) {
	var attrs []attribute.KeyValue
	for pair := range strings.SplitSeq(input, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid attribute format '%s': expected key=value", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty attribute key in '%s'", pair)
		}
		attrs = append(attrs, attribute.String(key, strings.TrimSpace(value)))
	}

	slices.SortFunc(attrs, func(a, b attribute.KeyValue) int {
		return strings.Compare(string(a.Key), string(b.Key))
	})
	return attrs, nil
}
