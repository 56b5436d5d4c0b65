package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require merchantID for strict per-merchant isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, merchantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, merchantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, merchantID string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID         string            `json:"id"`
	MerchantID string            `json:"merchantId"`
	Topic      string            `json:"topic"`
	Payload    []byte            `json:"payload"`
	Metadata   map[string]string `json:"metadata"`
	Timestamp  int64             `json:"timestamp"`
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

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// GlobalMerchantKey is the subscription key that receives a topic's messages
// from every merchant. Publishing still requires a real merchant ID.
const GlobalMerchantKey = "_global"

// Standard topic names for the scoring pipeline. The bus implementations
// prefix these with the merchant scope.
const (
	TopicReturnRequested = "return.requested"
	TopicReturnScored    = "return.scored"
	TopicReturnDenied    = "return.denied"
)
