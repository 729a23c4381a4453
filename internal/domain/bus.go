package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (community) or NATS (pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (community tier)
	ChannelBufferSize int

	// NATS settings (pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the analysis pipeline.
const (
	TopicBatchIngested = "leadhawk.batch.ingested"
	TopicRunCompleted  = "leadhawk.run.completed"
	TopicAlertRed      = "leadhawk.alert.red"
	TopicAlertOrange   = "leadhawk.alert.orange"
	TopicAlertYellow   = "leadhawk.alert.yellow"
)

// AlertTopic returns the topic for a severity tier.
func AlertTopic(sev Severity) string {
	switch sev {
	case SeverityRed:
		return TopicAlertRed
	case SeverityOrange:
		return TopicAlertOrange
	default:
		return TopicAlertYellow
	}
}
