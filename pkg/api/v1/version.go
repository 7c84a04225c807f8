// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/authguard/pkg/api/errors"
	"github.com/stacklok/authguard/pkg/versions"
)

// VersionRouter sets up the version route.
func VersionRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", getVersion)
	return r
}

func getVersion(w http.ResponseWriter, _ *http.Request) {
	apierrors.WriteJSON(w, http.StatusOK, versions.GetVersionInfo())
}
