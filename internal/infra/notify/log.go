// Package notify delivers notification messages. The log notifier writes
// them to the structured log; the outbox notifier persists them for
// delivery by another process.
package notify

import (
	"context"
	"maps"
	"slices"

	"github.com/ahrav/provisioner/internal/domain/notification"
	"github.com/ahrav/provisioner/pkg/common/logger"
)

// Log writes every message to the structured log.
type Log struct {
	logger *logger.Logger
	// redacted topics carry credentials; only their parameter names are logged.
	redacted map[notification.Topic]struct{}
}

var _ notification.Notifier = (*Log)(nil)

// NewLog creates a log notifier.
func NewLog(log *logger.Logger) *Log {
	return &Log{
		logger:   log.With("component", "notifier"),
		redacted: map[notification.Topic]struct{}{notification.TopicPasswordDelivery: {}},
	}
}

// Send logs msg. It never fails.
func (n *Log) Send(ctx context.Context, topic notification.Topic, msg notification.Message, recipients ...string) error {
	args := []any{
		"topic", string(topic),
		"level", string(msg.Level),
		"subject", msg.Subject,
		"recipients", recipients,
	}
	if _, ok := n.redacted[topic]; ok {
		args = append(args, "params", slices.Sorted(maps.Keys(msg.Params)))
	} else {
		args = append(args, "body", msg.Body, "params", msg.Params)
	}

	switch msg.Level {
	case notification.LevelError:
		n.logger.Error(ctx, "notification", args...)
	case notification.LevelWarning:
		n.logger.Warn(ctx, "notification", args...)
	default:
		n.logger.Info(ctx, "notification", args...)
	}
	return nil
}
