// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package v1 contains the HTTP routes of the token exchange engine.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/stacklok/authguard/pkg/api/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON decodes the request body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &apierrors.RequestError{
				Status: http.StatusRequestEntityTooLarge, Message: "request body too large", Cause: err,
			}
		}
		return apierrors.NewBadRequest("failed to decode request", err)
	}
	return validateRequest(dst)
}

// isForm reports whether the request carries a URL-encoded form.
func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// parseForm parses a URL-encoded body.
func parseForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return apierrors.NewBadRequest("failed to parse form", err)
	}
	return nil
}

func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apierrors.NewBadRequest(fmt.Sprintf("field %q failed on the '%s' rule", fe.Field(), fe.Tag()), nil)
	}
	return apierrors.NewBadRequest("invalid request", err)
}
