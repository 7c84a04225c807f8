// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package async provides a minimal typed future for running a blocking
// call in its own goroutine and collecting the result later.
package async

import (
	"context"
)

// Future holds the eventual result of a call started with Go.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn in a new goroutine and returns a Future for its result.
// fn receives ctx; cancelling ctx is the only way to stop it early.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn(ctx)
	}()
	return f
}

// Completed returns a Future that is already resolved.
func Completed[T any](value T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: value, err: err}
	close(f.done)
	return f
}

// Done returns a channel that is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is done. When ctx ends
// first, the zero value and ctx.Err() are returned; the call keeps running.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get blocks until the result is available.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}
