package domain

import (
	"context"
)

// EventBus defines the interface for event-driven fan-out of analysis
// outcomes. Supports Go channels, NATS, or Kafka (publish-only).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

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
	// Type is the bus type: "channel", "nats" or "kafka"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds

	// Kafka settings (publish-only)
	KafkaBrokers []string
}

// Standard topic names for the analysis pipeline.
const (
	TopicVerdict = "kestrel.verdict"
	TopicAlert   = "kestrel.alert"
)

// VerdictEvent is the payload published on TopicVerdict after every
// analysis, and on TopicAlert when the verdict is fraudulent.
type VerdictEvent struct {
	CaseID        string    `json:"caseId"`
	TransactionID string    `json:"transactionId,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	IsFraudulent  bool      `json:"isFraudulent"`
	FraudType     FraudType `json:"fraudType"`
	RiskLevel     RiskLevel `json:"riskLevel"`
	FinalScore    float64   `json:"finalScore"`
}
