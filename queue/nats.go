package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSQueue implements Source and Sink over NATS JetStream. The source
// is a durable pull consumer with explicit acks; AckWait plays the role
// of the invisibility window, redelivering messages whose consumer
// never acked.
type NATSQueue struct {
	conn *nats.Conn
	js   jetstream.JetStream

	subject string
	group   string
	poll    time.Duration
	maxMsgs int64
	log     zerolog.Logger

	mu       sync.Mutex
	consumer jetstream.Consumer
	ensured  map[string]bool
}

// NATSConfig holds JetStream queue configuration.
type NATSConfig struct {
	// URL is the NATS server URL (e.g. nats://localhost:4222).
	URL string

	// Name identifies the client connection.
	Name string

	// Subject is the source subject the durable consumer pulls from.
	Subject string

	// Group is the durable consumer name, shared by all worker
	// instances in the group.
	Group string

	// MaxMsgs bounds stream size. 0 means unlimited.
	MaxMsgs int64

	// PollTimeout bounds how long Receive waits for messages.
	// Default: 2s.
	PollTimeout time.Duration

	// ConnectTimeout for the initial connection. Default: 5s.
	ConnectTimeout time.Duration
}

// NewNATSQueue connects to NATS and ensures the source stream exists.
// The durable consumer is created on the first Receive, which fixes
// its AckWait to that call's invisibility window.
func NewNATSQueue(ctx context.Context, cfg NATSConfig, log zerolog.Logger) (*NATSQueue, error) {
	if cfg.Subject == "" {
		return nil, ErrInvalidTopic
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	opts := []nats.Option{nats.Timeout(cfg.ConnectTimeout)}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	q := &NATSQueue{
		conn:    conn,
		js:      js,
		subject: cfg.Subject,
		group:   cfg.Group,
		poll:    cfg.PollTimeout,
		maxMsgs: cfg.MaxMsgs,
		ensured: make(map[string]bool),
		log:     log.With().Str("subject", cfg.Subject).Str("group", cfg.Group).Logger(),
	}

	if err := q.ensureStream(ctx, cfg.Subject); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// StreamName maps a dotted topic to a JetStream stream name.
func StreamName(topic string) string {
	return strings.ToUpper(strings.ReplaceAll(topic, ".", "_"))
}

func (q *NATSQueue) ensureStream(ctx context.Context, topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ensured[topic] {
		return nil
	}
	_, err := q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName(topic),
		Subjects: []string{topic},
		MaxMsgs:  q.maxMsgs,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", topic, err)
	}
	q.ensured[topic] = true
	return nil
}

func (q *NATSQueue) getConsumer(ctx context.Context, invisible time.Duration) (jetstream.Consumer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.consumer != nil {
		return q.consumer, nil
	}
	cons, err := q.js.CreateOrUpdateConsumer(ctx, StreamName(q.subject), jetstream.ConsumerConfig{
		Durable:       q.group,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       invisible,
		FilterSubject: q.subject,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	q.consumer = cons
	return cons, nil
}

// Receive pulls up to max messages, waiting at most PollTimeout.
func (q *NATSQueue) Receive(ctx context.Context, max int, invisible time.Duration) ([]Message, error) {
	if max <= 0 {
		return nil, nil
	}

	cons, err := q.getConsumer(ctx, invisible)
	if err != nil {
		return nil, err
	}

	batch, err := cons.Fetch(max, jetstream.FetchMaxWait(q.poll))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	var out []Message
	for msg := range batch.Messages() {
		m := msg
		meta, _ := m.Metadata()
		id := ""
		if meta != nil {
			id = fmt.Sprintf("%d", meta.Sequence.Stream)
		}
		out = append(out, Message{
			ID:   id,
			Body: m.Data(),
			Key:  m.Headers().Get(nats.MsgIdHdr),
			ack: func(context.Context) error {
				return m.Ack()
			},
		})
	}
	if err := batch.Error(); err != nil {
		return out, fmt.Errorf("fetch: %w", err)
	}
	return out, nil
}

// Ack acknowledges a delivery so it is never redelivered.
func (q *NATSQueue) Ack(ctx context.Context, msg Message) error {
	if msg.ack == nil {
		return ErrNoAckHandle
	}
	return msg.ack(ctx)
}

// Send publishes a message with the correlation key as its message ID,
// which also deduplicates republished outcomes inside the dedup window.
func (q *NATSQueue) Send(ctx context.Context, topic string, body []byte, key string) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if err := q.ensureStream(ctx, topic); err != nil {
		return err
	}

	var opts []jetstream.PublishOpt
	if key != "" {
		opts = append(opts, jetstream.WithMsgID(key))
	}
	if _, err := q.js.Publish(ctx, topic, body, opts...); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *NATSQueue) Close() error {
	q.conn.Close()
	return nil
}
