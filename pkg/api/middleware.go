// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"io"
	"net/http"
)

// requestBodySizeLimitMiddleware rejects bodies larger than limit with 413.
// Declared lengths are checked up front. Bodies that lie about their length
// are cut off while reading, and a 400 written by the handler in response is
// turned into 413.
func requestBodySizeLimitMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			body := &limitedBody{ReadCloser: http.MaxBytesReader(w, r.Body, limit)}
			r.Body = body
			next.ServeHTTP(&bodySizeResponseWriter{ResponseWriter: w, body: body}, r)
		})
	}
}

type limitedBody struct {
	io.ReadCloser
	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded = true
	}
	return n, err
}

type bodySizeResponseWriter struct {
	http.ResponseWriter
	body *limitedBody
}

func (w *bodySizeResponseWriter) WriteHeader(code int) {
	if code == http.StatusBadRequest && w.body.exceeded {
		code = http.StatusRequestEntityTooLarge
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodySizeResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
