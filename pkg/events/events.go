// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events is the notification sink of the exchange engine.
//
// Exchanges publish through a Publisher and never wait for delivery. The
// AsyncPublisher hands each message to a Sender on its own goroutine, and
// a failed send is logged and dropped.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/logger"
)

// Channels messages are published on.
const (
	ChannelAccounts     = "accounts"
	ChannelSessions     = "sessions"
	ChannelPasswordless = "passwordless"
	ChannelAPIKeys      = "apikeys"
)

// Channels lists every channel the engine publishes on.
var Channels = []string{ChannelAccounts, ChannelSessions, ChannelPasswordless, ChannelAPIKeys}

// Event names.
const (
	EventAuthenticated      = "authenticated"
	EventSessionCreated     = "session_created"
	EventPasswordlessIssued = "passwordless_issued"
	EventAPIKeyIssued       = "apikey_issued"
)

// DefaultSendTimeout bounds a single delivery attempt.
const DefaultSendTimeout = 5 * time.Second

// Message is one notification.
type Message struct {
	Event      string            `json:"event"`
	EntityType auth.EntityType   `json:"entityType,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Time       time.Time         `json:"time"`
}

// Publisher accepts messages without blocking the caller on delivery.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg Message)
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, channel string, msg Message) error
}

// AsyncPublisher publishes every message through a Sender on its own goroutine.
type AsyncPublisher struct {
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

// AsyncOption configures an AsyncPublisher.
type AsyncOption func(*AsyncPublisher)

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(d time.Duration) AsyncOption {
	return func(p *AsyncPublisher) {
		p.timeout = d
	}
}

// WithLogger sets the logger used to report failed sends.
func WithLogger(l *slog.Logger) AsyncOption {
	return func(p *AsyncPublisher) {
		p.logger = l
	}
}

// NewAsyncPublisher creates an AsyncPublisher over sender.
func NewAsyncPublisher(sender Sender, opts ...AsyncOption) *AsyncPublisher {
	p := &AsyncPublisher{
		sender:  sender,
		timeout: DefaultSendTimeout,
		logger:  logger.Get(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish schedules delivery of msg and returns immediately. The send is
// detached from ctx cancellation so a finished request does not abort it.
func (p *AsyncPublisher) Publish(ctx context.Context, channel string, msg Message) {
	if msg.Time.IsZero() {
		msg.Time = p.now()
	}
	sendCtx := context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("event sender panicked", "channel", channel, "event", msg.Event, "panic", r)
			}
		}()

		sendCtx, cancel := context.WithTimeout(sendCtx, p.timeout)
		defer cancel()
		if err := p.sender.Send(sendCtx, channel, msg); err != nil {
			p.logger.Warn("failed to publish event", "channel", channel, "event", msg.Event, "error", err)
		}
	}()
}

// Flush waits for every scheduled send to finish or ctx to end.
func (p *AsyncPublisher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Nop discards every message.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, Message) {}

var (
	_ Publisher = (*AsyncPublisher)(nil)
	_ Publisher = Nop{}
)
