package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/provisioner/internal/db"
	"github.com/ahrav/provisioner/internal/domain/notification"
	"github.com/ahrav/provisioner/internal/infra/storage"
	"github.com/ahrav/provisioner/pkg/common/logger"
)

// Envelope is a message stored in the outbox.
type Envelope struct {
	ID         int64
	Topic      notification.Topic
	Message    notification.Message
	Recipients []string
}

// Outbox persists messages in the notification_outbox table.
type Outbox struct {
	q      *db.Queries
	tracer trace.Tracer
}

var _ notification.Notifier = (*Outbox)(nil)

// NewOutbox creates an outbox notifier on pool.
func NewOutbox(pool *pgxpool.Pool, tracer trace.Tracer) *Outbox {
	return &Outbox{q: db.New(pool), tracer: tracer}
}

// Send appends msg to the outbox.
func (o *Outbox) Send(ctx context.Context, topic notification.Topic, msg notification.Message, recipients ...string) error {
	attrs := storage.DBAttributes(attribute.String("notification.topic", string(topic)))
	return storage.ExecuteAndTrace(ctx, o.tracer, "outbox.Send", attrs, func(ctx context.Context) error {
		params := msg.Params
		if params == nil {
			params = map[string]string{}
		}
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode notification params: %w", err)
		}
		if recipients == nil {
			recipients = []string{}
		}

		if _, err := o.q.InsertOutboxMessage(ctx, db.InsertOutboxMessageParams{
			Topic:      string(topic),
			Level:      string(msg.Level),
			Subject:    msg.Subject,
			Body:       msg.Body,
			Params:     encoded,
			Recipients: recipients,
		}); err != nil {
			return fmt.Errorf("failed to enqueue notification: %w", err)
		}
		return nil
	})
}

// Pending returns up to limit undelivered messages, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Envelope, error) {
	var rows []db.NotificationOutbox
	err := storage.ExecuteAndTrace(ctx, o.tracer, "outbox.Pending", storage.DBAttributes(), func(ctx context.Context) error {
		var err error
		rows, err = o.q.FindPendingOutboxMessages(ctx, int32(limit))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load pending notifications: %w", err)
	}

	out := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		var params map[string]string
		if err := json.Unmarshal(row.Params, &params); err != nil {
			return nil, fmt.Errorf("failed to decode params of notification %d: %w", row.ID, err)
		}
		var sentAt time.Time
		if row.CreatedAt.Valid {
			sentAt = row.CreatedAt.Time.UTC()
		}
		out = append(out, Envelope{
			ID:    row.ID,
			Topic: notification.Topic(row.Topic),
			Message: notification.Message{
				Level:   notification.Level(row.Level),
				Subject: row.Subject,
				Body:    row.Body,
				Params:  params,
				SentAt:  sentAt,
			},
			Recipients: row.Recipients,
		})
	}
	return out, nil
}

// MarkDelivered flags a message as delivered.
func (o *Outbox) MarkDelivered(ctx context.Context, id int64) error {
	attrs := storage.DBAttributes(attribute.Int64("notification.id", id))
	return storage.ExecuteAndTrace(ctx, o.tracer, "outbox.MarkDelivered", attrs, func(ctx context.Context) error {
		return o.q.MarkOutboxDelivered(ctx, id)
	})
}

// Relay drains the outbox into a downstream notifier.
type Relay struct {
	outbox *Outbox
	next   notification.Notifier
	batch  int
	logger *logger.Logger
}

// NewRelay creates a relay forwarding up to batch messages per Drain.
func NewRelay(outbox *Outbox, next notification.Notifier, batch int, log *logger.Logger) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{outbox: outbox, next: next, batch: batch, logger: log.With("component", "outbox_relay")}
}

// Drain forwards pending messages and marks them delivered. A message the
// downstream notifier rejects stays pending for the next run.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	pending, err := r.outbox.Pending(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, env := range pending {
		if err := r.next.Send(ctx, env.Topic, env.Message, env.Recipients...); err != nil {
			r.logger.Warn(ctx, "failed to relay notification", "notification_id", env.ID, "error", err)
			continue
		}
		if err := r.outbox.MarkDelivered(ctx, env.ID); err != nil {
			return delivered, fmt.Errorf("failed to mark notification %d delivered: %w", env.ID, err)
		}
		delivered++
	}
	return delivered, nil
}
