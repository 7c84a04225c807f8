// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces redis pub/sub channels.
const DefaultChannelPrefix = "authguard:events:"

// RedisSender publishes messages as JSON on redis pub/sub channels named
// prefix + channel.
type RedisSender struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSender creates a RedisSender. An empty prefix selects DefaultChannelPrefix.
func NewRedisSender(client redis.UniversalClient, prefix string) *RedisSender {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisSender{client: client, prefix: prefix}
}

// Channel returns the redis channel name for channel.
func (s *RedisSender) Channel(channel string) string {
	return s.prefix + channel
}

// Send implements Sender.
func (s *RedisSender) Send(ctx context.Context, channel string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.Channel(channel), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
