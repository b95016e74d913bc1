package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryQueue is a single-process queue with real visibility semantics:
// received messages are hidden for the invisibility window and return
// to pending if not acked before it lapses. It implements both Source
// (for its configured topic) and Sink (for any topic).
type MemoryQueue struct {
	topic string

	mu     sync.Mutex
	topics map[string][]*memEntry
	nextID uint64
	closed atomic.Bool
}

type memEntry struct {
	id         string
	body       []byte
	key        string
	visibleAt  time.Time
	acked      bool
	deliveries int
}

// NewMemoryQueue creates a memory queue that receives from topic.
func NewMemoryQueue(topic string) *MemoryQueue {
	return &MemoryQueue{
		topic:  topic,
		topics: make(map[string][]*memEntry),
	}
}

// Send publishes a message to a topic.
func (q *MemoryQueue) Send(ctx context.Context, topic string, body []byte, key string) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if q.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	e := &memEntry{
		id:   fmt.Sprintf("%d", q.nextID),
		body: append([]byte(nil), body...),
		key:  key,
	}
	q.topics[topic] = append(q.topics[topic], e)
	return nil
}

// Receive returns up to max currently-visible messages from the source
// topic and hides them for the invisible duration. It never blocks.
func (q *MemoryQueue) Receive(ctx context.Context, max int, invisible time.Duration) ([]Message, error) {
	if q.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var out []Message
	for _, e := range q.topics[q.topic] {
		if len(out) >= max {
			break
		}
		if e.acked || e.visibleAt.After(now) {
			continue
		}
		e.visibleAt = now.Add(invisible)
		e.deliveries++

		entry := e
		out = append(out, Message{
			ID:   e.id,
			Body: append([]byte(nil), e.body...),
			Key:  e.key,
			ack: func(context.Context) error {
				q.mu.Lock()
				defer q.mu.Unlock()
				entry.acked = true
				return nil
			},
		})
	}
	return out, nil
}

// Ack marks a message as consumed; it will never be redelivered.
func (q *MemoryQueue) Ack(ctx context.Context, msg Message) error {
	if q.closed.Load() {
		return ErrClosed
	}
	if msg.ack == nil {
		return ErrNoAckHandle
	}
	return msg.ack(ctx)
}

// Close shuts the queue down.
func (q *MemoryQueue) Close() error {
	q.closed.Store(true)
	return nil
}

// Depth reports the number of unacked messages on a topic, visible or
// not. Test helper.
func (q *MemoryQueue) Depth(topic string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.topics[topic] {
		if !e.acked {
			n++
		}
	}
	return n
}

// Bodies returns the bodies of every message ever sent to a topic, in
// publish order, acked or not. Test helper.
func (q *MemoryQueue) Bodies(topic string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([][]byte, 0, len(q.topics[topic]))
	for _, e := range q.topics[topic] {
		out = append(out, append([]byte(nil), e.body...))
	}
	return out
}

// Deliveries reports how many times a message has been received. Test helper.
func (q *MemoryQueue) Deliveries(topic, id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.topics[topic] {
		if e.id == id {
			return e.deliveries
		}
	}
	return 0
}
