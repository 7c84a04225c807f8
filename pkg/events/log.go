// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"log/slog"
)

// LogSender writes every message to a logger at info level.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(l *slog.Logger) *LogSender {
	return &LogSender{logger: l}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, channel string, msg Message) error {
	s.logger.InfoContext(ctx, "event",
		"channel", channel,
		"event", msg.Event,
		"entity_type", msg.EntityType,
		"entity_id", msg.EntityID,
	)
	return nil
}
