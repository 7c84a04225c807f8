// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the failure taxonomy of the token exchange engine.
//
// Every kind except ErrInternal is an expected, caller-actionable outcome.
// ErrInternal is reserved for unexpected faults and is produced by the
// exchange dispatcher when it wraps an unclassified error.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stacklok/authguard/pkg/auth"
)

// Error types
const (
	// ErrUnsupportedScheme is returned when an authorization header uses a scheme other than the expected one
	ErrUnsupportedScheme = "UNSUPPORTED_SCHEME"

	// ErrInvalidAuthorizationFormat is returned when an encoded credential cannot be decoded or split
	ErrInvalidAuthorizationFormat = "INVALID_AUTHORIZATION_FORMAT"

	// ErrCredentialsDoNotExist is returned when no credential record matches the identifier
	ErrCredentialsDoNotExist = "CREDENTIALS_DOES_NOT_EXIST"

	// ErrPasswordsDoNotMatch is returned when the presented secret does not match the stored hash
	ErrPasswordsDoNotMatch = "PASSWORDS_DO_NOT_MATCH"

	// ErrAccountDoesNotExist is returned when the account behind a credential cannot be resolved
	ErrAccountDoesNotExist = "ACCOUNT_DOES_NOT_EXIST"

	// ErrAppDoesNotExist is returned when an application or client cannot be resolved
	ErrAppDoesNotExist = "APP_DOES_NOT_EXIST"

	// ErrInvalidToken is returned when a presented token is absent or unknown
	ErrInvalidToken = "INVALID_TOKEN"

	// ErrExpiredToken is returned when a presented token exists but is past its TTL
	ErrExpiredToken = "EXPIRED_TOKEN"

	// ErrInvalidAdditionalInformationType is returned when a stored record carries data of an unknown shape
	ErrInvalidAdditionalInformationType = "INVALID_ADDITIONAL_INFORMATION_TYPE"

	// ErrClientNotPermitted is returned when a client is not allowed to use a flow
	ErrClientNotPermitted = "CLIENT_NOT_PERMITTED"

	// ErrGenericAuthFailure is returned when a protocol precondition is violated
	ErrGenericAuthFailure = "GENERIC_AUTH_FAILURE"

	// ErrUnknownExchange is returned when no handler is registered for a type pair
	ErrUnknownExchange = "UNKNOWN_EXCHANGE"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "INTERNAL"
)

// Error represents an auth failure.
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// EntityType and EntityID identify the principal the failure is about, when known.
	EntityType auth.EntityType
	EntityID   string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithEntity returns a copy of e that names the principal the failure is about.
func (e *Error) WithEntity(entityType auth.EntityType, entityID string) *Error {
	out := *e
	out.EntityType = entityType
	out.EntityID = entityID
	return &out
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewUnsupportedSchemeError creates a new unsupported scheme error
func NewUnsupportedSchemeError(message string) *Error {
	return NewError(ErrUnsupportedScheme, message, nil)
}

// NewInvalidAuthorizationFormatError creates a new invalid authorization format error
func NewInvalidAuthorizationFormatError(message string, cause error) *Error {
	return NewError(ErrInvalidAuthorizationFormat, message, cause)
}

// NewCredentialsDoNotExistError creates a new credentials do not exist error
func NewCredentialsDoNotExistError(message string) *Error {
	return NewError(ErrCredentialsDoNotExist, message, nil)
}

// NewPasswordsDoNotMatchError creates a new passwords do not match error
func NewPasswordsDoNotMatchError(message string) *Error {
	return NewError(ErrPasswordsDoNotMatch, message, nil)
}

// NewAccountDoesNotExistError creates a new account does not exist error for accountID
func NewAccountDoesNotExistError(message, accountID string) *Error {
	return NewError(ErrAccountDoesNotExist, message, nil).WithEntity(auth.EntityAccount, accountID)
}

// NewAppDoesNotExistError creates a new app does not exist error for appID
func NewAppDoesNotExistError(message, appID string) *Error {
	return NewError(ErrAppDoesNotExist, message, nil).WithEntity(auth.EntityApplication, appID)
}

// NewInvalidTokenError creates a new invalid token error
func NewInvalidTokenError(message string) *Error {
	return NewError(ErrInvalidToken, message, nil)
}

// NewExpiredTokenError creates a new expired token error naming the owning principal
func NewExpiredTokenError(message string, entityType auth.EntityType, entityID string) *Error {
	return NewError(ErrExpiredToken, message, nil).WithEntity(entityType, entityID)
}

// NewInvalidAdditionalInformationTypeError creates a new invalid additional information type error
func NewInvalidAdditionalInformationTypeError(message, accountID string) *Error {
	return NewError(ErrInvalidAdditionalInformationType, message, nil).WithEntity(auth.EntityAccount, accountID)
}

// NewClientNotPermittedError creates a new client not permitted error
func NewClientNotPermittedError(message, clientID string) *Error {
	return NewError(ErrClientNotPermitted, message, nil).WithEntity(auth.EntityApplication, clientID)
}

// NewGenericAuthFailureError creates a new generic auth failure error
func NewGenericAuthFailureError(message string) *Error {
	return NewError(ErrGenericAuthFailure, message, nil)
}

// NewUnknownExchangeError creates a new unknown exchange error naming both token types
func NewUnknownExchangeError(from, to string) *Error {
	return NewError(ErrUnknownExchange, fmt.Sprintf("unknown token exchange %s to %s", from, to), nil)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TypeOf returns the type of the first *Error in err's chain, or the empty string.
func TypeOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Type
	}
	return ""
}

// IsExpected reports whether err is a classified, caller-actionable failure.
func IsExpected(err error) bool {
	e, ok := AsError(err)
	return ok && e.Type != ErrInternal
}

func isType(err error, errorType string) bool {
	return TypeOf(err) == errorType
}

// IsUnsupportedScheme checks if the error is an unsupported scheme error
func IsUnsupportedScheme(err error) bool { return isType(err, ErrUnsupportedScheme) }

// IsInvalidAuthorizationFormat checks if the error is an invalid authorization format error
func IsInvalidAuthorizationFormat(err error) bool { return isType(err, ErrInvalidAuthorizationFormat) }

// IsCredentialsDoNotExist checks if the error is a credentials do not exist error
func IsCredentialsDoNotExist(err error) bool { return isType(err, ErrCredentialsDoNotExist) }

// IsPasswordsDoNotMatch checks if the error is a passwords do not match error
func IsPasswordsDoNotMatch(err error) bool { return isType(err, ErrPasswordsDoNotMatch) }

// IsAccountDoesNotExist checks if the error is an account does not exist error
func IsAccountDoesNotExist(err error) bool { return isType(err, ErrAccountDoesNotExist) }

// IsAppDoesNotExist checks if the error is an app does not exist error
func IsAppDoesNotExist(err error) bool { return isType(err, ErrAppDoesNotExist) }

// IsInvalidToken checks if the error is an invalid token error
func IsInvalidToken(err error) bool { return isType(err, ErrInvalidToken) }

// IsExpiredToken checks if the error is an expired token error
func IsExpiredToken(err error) bool { return isType(err, ErrExpiredToken) }

// IsInvalidAdditionalInformationType checks if the error is an invalid additional information type error
func IsInvalidAdditionalInformationType(err error) bool {
	return isType(err, ErrInvalidAdditionalInformationType)
}

// IsClientNotPermitted checks if the error is a client not permitted error
func IsClientNotPermitted(err error) bool { return isType(err, ErrClientNotPermitted) }

// IsGenericAuthFailure checks if the error is a generic auth failure error
func IsGenericAuthFailure(err error) bool { return isType(err, ErrGenericAuthFailure) }

// IsUnknownExchange checks if the error is an unknown exchange error
func IsUnknownExchange(err error) bool { return isType(err, ErrUnknownExchange) }

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool { return isType(err, ErrInternal) }

// HTTPStatus maps an error to the status code a REST layer should answer with.
// Unclassified errors map to 500.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrUnsupportedScheme, ErrInvalidAuthorizationFormat, ErrGenericAuthFailure:
		return http.StatusBadRequest
	case ErrCredentialsDoNotExist, ErrPasswordsDoNotMatch, ErrAccountDoesNotExist,
		ErrAppDoesNotExist, ErrInvalidToken, ErrExpiredToken:
		return http.StatusUnauthorized
	case ErrClientNotPermitted:
		return http.StatusForbidden
	case ErrUnknownExchange:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
