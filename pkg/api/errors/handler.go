// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors renders handler failures as JSON HTTP responses.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stacklok/authguard/pkg/auth"
	autherrors "github.com/stacklok/authguard/pkg/errors"
	"github.com/stacklok/authguard/pkg/logger"
)

// CodeInvalidRequest is the code of a request rejected before it reached
// the engine.
const CodeInvalidRequest = "INVALID_REQUEST"

// Response is the body of every error response.
type Response struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	EntityType auth.EntityType `json:"entityType,omitempty"`
	EntityID   string          `json:"entityId,omitempty"`
}

// RequestError is a malformed or invalid request body.
type RequestError struct {
	Status  int
	Message string
	Cause   error
}

func (e *RequestError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// NewBadRequest returns a 400 RequestError.
func NewBadRequest(message string, cause error) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: message, Cause: cause}
}

// HandlerWithError is an HTTP handler that can return an error.
// This signature allows handlers to return errors instead of manually
// writing error responses, enabling centralized error handling.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError and converts returned errors
// into JSON error responses.
//
//   - Returns early if no error is returned (handler already wrote response)
//   - Request errors answer with their own status and message
//   - Engine failures map their kind to a status through errors.HTTPStatus
//   - For 5xx errors: logs full error details, returns a generic message
//
// Usage:
//
//	r.Post("/", apierrors.ErrorHandler(routes.exchange))
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		WriteError(w, err)
	}
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		WriteJSON(w, reqErr.Status, Response{Code: CodeInvalidRequest, Message: reqErr.Error()})
		return
	}

	status := autherrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Errorw("internal server error", "error", err)
		WriteJSON(w, status, Response{Code: autherrors.ErrInternal, Message: http.StatusText(status)})
		return
	}

	resp := Response{Code: autherrors.TypeOf(err), Message: err.Error()}
	if e, ok := autherrors.AsError(err); ok {
		resp.Message = e.Message
		resp.EntityType = e.EntityType
		resp.EntityID = e.EntityID
	}
	WriteJSON(w, status, resp)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugw("failed to encode response", "error", err)
	}
}
