// Package notify delivers alert messages to the chat channel.
//
// Delivery is at most once: a Notifier makes a single attempt and returns
// the outcome. Callers log failures and move on.
package notify

import (
	"context"
	"log/slog"
)

// Notifier sends one message to a preconfigured destination.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Log writes alerts to a logger instead of a chat. Used when no bot token
// is configured (local dry runs).
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log notifier. nil uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, message string) error {
	l.logger.InfoContext(ctx, "notify: alert (dry run)", "message", message)
	return nil
}
