// Package notification describes the messages the provisioning core emits.
// Delivery is fire-and-forget: a failed send never changes the outcome of
// the operation that caused it.
package notification

import (
	"context"
	"fmt"
	"time"
)

// Topic routes a message to a template and a set of subscribers.
type Topic string

// Topics sent by the provisioning core.
const (
	TopicProvisioning     Topic = "provisioning:operation"
	TopicBreakWarning     Topic = "provisioning:break-warning"
	TopicBreakDisabled    Topic = "provisioning:break-disabled"
	TopicPasswordDelivery Topic = "provisioning:password-delivery"
)

// Level is the severity of a message.
type Level string

// Message levels.
const (
	LevelInfo    Level = "INFO"
	LevelSuccess Level = "SUCCESS"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Message is the model handed to the notification sink.
type Message struct {
	Level   Level
	Subject string
	Body    string
	// Params carry template parameters such as the system or operation id.
	Params  map[string]string
	SentAt  time.Time
}

// NewMessage creates a message stamped with the current time.
func NewMessage(level Level, subject, body string, params map[string]string) Message {
	return Message{Level: level, Subject: subject, Body: body, Params: params, SentAt: time.Now().UTC()}
}

// Messagef is a shorthand for a message whose body is formatted.
func Messagef(level Level, subject string, params map[string]string, format string, args ...any) Message {
	return NewMessage(level, subject, fmt.Sprintf(format, args...), params)
}

// Notifier sends messages to recipients. No recipients means the topic's
// default subscribers.
type Notifier interface {
	Send(ctx context.Context, topic Topic, msg Message, recipients ...string) error
}
