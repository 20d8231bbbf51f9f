// Package consumer defines interfaces for Kafka event consumption.
//
// This package provides abstractions for consuming events from Kafka
// and managing consumer lifecycle.
package consumer

import (
	"context"

	"github.com/jittakal/kafavrosink/pkg/event"
)

// Consumer reads events from Kafka topics.
type Consumer interface {
	// Subscribe subscribes to one or more topics.
	Subscribe(ctx context.Context, topics []string) error

	// Consume starts consuming messages from subscribed topics.
	// Returns channels for events and errors.
	Consume(ctx context.Context) (<-chan *event.ConsumedEvent, <-chan error, error)

	// Ready reports whether the consumer has joined its group.
	Ready() bool

	// Close closes the consumer and releases resources.
	Close() error
}

// DLQPublisher publishes events that could not be written to a dead letter queue.
type DLQPublisher interface {
	// Publish sends an event to the DLQ with the failure reason.
	Publish(ctx context.Context, evt *event.Event, metadata event.KafkaMetadata, reason string) error

	// Close closes the publisher and releases resources.
	Close() error
}
