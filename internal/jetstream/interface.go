package jetstream

import (
	"context"

	"github.com/nats-io/nats.go"
)

// ClientInterface defines the interface for the JetStream client
// This allows for easy mocking in tests
type ClientInterface interface {
	// SetupStream ensures the stream exists with the given configuration
	SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error

	// SetupConsumer ensures the durable consumer exists on streamName with the given configuration
	SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error

	// SubscribePull binds a pull subscription to an existing durable consumer
	SubscribePull(streamName, subject, consumer string) (*nats.Subscription, error)

	// Publish publishes a message to a subject with optional headers and waits for the stream ack
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error

	// IsConnected reports whether the underlying connection is currently usable
	IsConnected() bool

	// Close drains and closes the NATS connection
	Close()
}
