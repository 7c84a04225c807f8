// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContext_StoreAndRetrieve(t *testing.T) {
	t.Parallel()

	ctx := WithRequestContext(context.Background(), RequestContext{
		ClientID:  "42",
		Source:    "http",
		IPAddress: "10.0.0.1",
	})

	rc, ok := RequestContextFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "42", rc.ClientID)
	assert.Equal(t, "http", rc.Source)
	assert.Equal(t, "10.0.0.1", rc.IPAddress)
	assert.Equal(t, "42", ClientIDFromContext(ctx))
}

func TestRequestContext_Missing(t *testing.T) {
	t.Parallel()

	rc, ok := RequestContextFromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, rc.ClientID)
	assert.Empty(t, ClientIDFromContext(context.Background()))
}

func TestRequestContext_Override(t *testing.T) {
	t.Parallel()

	ctx := WithRequestContext(context.Background(), RequestContext{ClientID: "1"})
	inner := WithRequestContext(ctx, RequestContext{ClientID: "2"})

	assert.Equal(t, "1", ClientIDFromContext(ctx), "outer context must be unchanged")
	assert.Equal(t, "2", ClientIDFromContext(inner))
}
