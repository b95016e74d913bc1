package queue

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrClosed       = errors.New("queue closed")
	ErrNoAckHandle  = errors.New("message has no acknowledgment handle")
	ErrInvalidTopic = errors.New("invalid topic")
)

// Message is the queue envelope for one delivery: the serialized task
// body plus the metadata needed to acknowledge it. The acknowledgment
// handle is opaque and consumed exactly once through Source.Ack.
type Message struct {
	// ID is the backend delivery identifier, for logs only.
	ID string

	// Body is the raw message payload.
	Body []byte

	// Key is the correlation key the message was sent with.
	Key string

	ack func(ctx context.Context) error
}

// Source receives and acknowledges messages from one topic on behalf
// of a consumer group. Deliveries are at-least-once: a received message
// that is not acknowledged within its invisibility window becomes
// eligible for redelivery to any consumer in the group.
type Source interface {
	// Receive returns up to max messages. It may return an empty slice
	// and is bounded by the backend's poll timeout; it never blocks
	// indefinitely. Received messages stay invisible to other consumers
	// for the invisible duration.
	Receive(ctx context.Context, max int, invisible time.Duration) ([]Message, error)

	// Ack removes a message from future redelivery.
	Ack(ctx context.Context, msg Message) error

	// Close releases the source's connection.
	Close() error
}

// Sink publishes outcome messages to a downstream topic.
type Sink interface {
	// Send publishes body to topic with a correlation key.
	Send(ctx context.Context, topic string, body []byte, key string) error

	// Close releases the sink's connection.
	Close() error
}

// ValidateTopic checks a topic name.
func ValidateTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	return nil
}
