// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authguard/pkg/auth"
	autherrors "github.com/stacklok/authguard/pkg/errors"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		want       Response
	}{
		{
			name:       "no error",
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "request error",
			err:        NewBadRequest("failed to decode request", errors.New("unexpected EOF")),
			wantStatus: http.StatusBadRequest,
			want:       Response{Code: CodeInvalidRequest, Message: "failed to decode request: unexpected EOF"},
		},
		{
			name:       "wrapped engine failure keeps its entity",
			err:        fmt.Errorf("exchange: %w", autherrors.NewExpiredTokenError("refresh has expired", auth.EntityAccount, "acc-1")),
			wantStatus: http.StatusUnauthorized,
			want: Response{
				Code: autherrors.ErrExpiredToken, Message: "refresh has expired",
				EntityType: auth.EntityAccount, EntityID: "acc-1",
			},
		},
		{
			name:       "client not permitted",
			err:        autherrors.NewClientNotPermittedError("no", "7"),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "internal failures stay opaque",
			err:        autherrors.NewInternalError("database exploded", errors.New("disk full")),
			wantStatus: http.StatusInternalServerError,
			want:       Response{Code: autherrors.ErrInternal, Message: "Internal Server Error"},
		},
		{
			name:       "unclassified errors are internal",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			want:       Response{Code: autherrors.ErrInternal, Message: "Internal Server Error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := ErrorHandler(func(w http.ResponseWriter, _ *http.Request) error {
				if tt.err == nil {
					w.WriteHeader(http.StatusTeapot)
				}
				return tt.err
			})
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.err == nil || tt.want.Code == "" {
				return
			}
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var got Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}
