package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisQueue implements Source and Sink over Redis Streams with
// consumer groups. Redelivery of unacked messages uses XAUTOCLAIM:
// a message claimed by a consumer that never acks it is re-claimed
// once it has been idle for the invisibility window.
type RedisQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	maxLen   int64
	poll     time.Duration
	log      zerolog.Logger
}

// RedisConfig holds Redis Streams queue configuration.
type RedisConfig struct {
	// Addr is the Redis address, host:port.
	Addr     string
	Password string
	DB       int

	// Stream is the source stream the group consumes.
	Stream string

	// Group is the consumer group name.
	Group string

	// MaxLen bounds streams on Send with approximate trimming.
	// 0 disables trimming.
	MaxLen int64

	// PollTimeout bounds how long Receive blocks on an empty stream.
	// Default: 2s.
	PollTimeout time.Duration
}

// NewRedisQueue connects to Redis and ensures the stream and consumer
// group exist. The consumer name is unique per process instance.
func NewRedisQueue(ctx context.Context, cfg RedisConfig, log zerolog.Logger) (*RedisQueue, error) {
	if cfg.Stream == "" {
		return nil, ErrInvalidTopic
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	// BUSYGROUP means the group already exists, which is fine.
	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		client.Close()
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	q := &RedisQueue{
		client:   client,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: fmt.Sprintf("%s-%s", cfg.Group, uuid.NewString()),
		maxLen:   cfg.MaxLen,
		poll:     cfg.PollTimeout,
		log:      log.With().Str("stream", cfg.Stream).Str("group", cfg.Group).Logger(),
	}
	q.log.Debug().Str("consumer", q.consumer).Msg("redis queue ready")
	return q, nil
}

// Receive first reclaims messages whose previous consumer has been
// idle past the invisibility window, then reads new entries, up to max
// combined. An empty stream returns an empty slice after PollTimeout.
func (q *RedisQueue) Receive(ctx context.Context, max int, invisible time.Duration) ([]Message, error) {
	if max <= 0 {
		return nil, nil
	}

	var out []Message

	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  invisible,
		Start:    "0-0",
		Count:    int64(max),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	for _, m := range claimed {
		out = append(out, q.toMessage(m))
	}

	if len(out) >= max {
		return out, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    int64(max - len(out)),
		Block:    q.poll,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, q.toMessage(m))
		}
	}
	return out, nil
}

func (q *RedisQueue) toMessage(m redis.XMessage) Message {
	body, _ := m.Values["body"].(string)
	key, _ := m.Values["key"].(string)
	id := m.ID
	return Message{
		ID:   id,
		Body: []byte(body),
		Key:  key,
		ack: func(ctx context.Context) error {
			return q.client.XAck(ctx, q.stream, q.group, id).Err()
		},
	}
}

// Ack removes a delivery from the group's pending list.
func (q *RedisQueue) Ack(ctx context.Context, msg Message) error {
	if msg.ack == nil {
		return ErrNoAckHandle
	}
	if err := msg.ack(ctx); err != nil {
		return fmt.Errorf("xack %s: %w", msg.ID, err)
	}
	return nil
}

// Send appends a message to a stream with approximate length trimming.
func (q *RedisQueue) Send(ctx context.Context, topic string, body []byte, key string) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{"body": string(body), "key": key},
	}
	if q.maxLen > 0 {
		args.MaxLen = q.maxLen
		args.Approx = true
	}
	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", topic, err)
	}
	return nil
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Consumer returns this instance's consumer name within the group.
func (q *RedisQueue) Consumer() string {
	return q.consumer
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
