// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"io"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

// Composite joins a principal backend and a token backend into one Storage.
// The same value may back both halves; it is then checked and closed once.
type Composite struct {
	PrincipalStorage
	TokenStorage
}

// NewComposite returns a Storage that serves principals from p and tokens from t.
func NewComposite(p PrincipalStorage, t TokenStorage) *Composite {
	return &Composite{PrincipalStorage: p, TokenStorage: t}
}

func (c *Composite) parts() []any {
	if any(c.PrincipalStorage) == any(c.TokenStorage) {
		return []any{c.PrincipalStorage}
	}
	return []any{c.PrincipalStorage, c.TokenStorage}
}

// Health checks every distinct backend that supports it.
func (c *Composite) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.parts() {
		if h, ok := p.(healthChecker); ok {
			if err := h.Health(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every distinct backend that supports it.
func (c *Composite) Close() error {
	var errs []error
	for _, p := range c.parts() {
		if cl, ok := p.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

var _ Storage = (*Composite)(nil)
