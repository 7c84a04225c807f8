// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"sync"
)

// Handler receives messages delivered by a Bus.
type Handler func(ctx context.Context, channel string, msg Message) error

// Bus is an in-process Sender that fans each message out to the handlers
// subscribed to its channel.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for channel.
func (b *Bus) Subscribe(channel string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], h)
}

// Send implements Sender. Every handler runs even when an earlier one fails;
// the failures are joined.
func (b *Bus) Send(ctx context.Context, channel string, msg Message) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[channel]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, channel, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
