package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tasklab/agentq/task"
)

// RedisStore implements StatusStore on Redis with SET EX writes.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds Redis status store configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client, for callers that
// share one connection pool between the queue and the store.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// GetStatus returns the current status of a task.
func (s *RedisStore) GetStatus(ctx context.Context, taskID string) (task.Status, error) {
	v, err := s.client.Get(ctx, StatusKey(taskID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get status %s: %w", taskID, err)
	}
	return task.Status(v), nil
}

// SetStatus writes the status and refreshes the TTL.
func (s *RedisStore) SetStatus(ctx context.Context, taskID string, status task.Status, ttl time.Duration) error {
	if err := s.client.Set(ctx, StatusKey(taskID), string(status), ttl).Err(); err != nil {
		return fmt.Errorf("set status %s: %w", taskID, err)
	}
	return nil
}

// SetStatusWithResult writes status and result in one transaction so a
// reader never sees a terminal status without its result.
func (s *RedisStore) SetStatusWithResult(ctx context.Context, taskID string, status task.Status, result []byte, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, StatusKey(taskID), string(status), ttl)
		pipe.Set(ctx, ResultKey(taskID), result, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set status+result %s: %w", taskID, err)
	}
	return nil
}

// GetResult returns the retained result data for a task.
func (s *RedisStore) GetResult(ctx context.Context, taskID string) ([]byte, error) {
	v, err := s.client.Get(ctx, ResultKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get result %s: %w", taskID, err)
	}
	return v, nil
}

// Delete removes a task's entries.
func (s *RedisStore) Delete(ctx context.Context, taskID string) error {
	if err := s.client.Del(ctx, StatusKey(taskID), ResultKey(taskID)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", taskID, err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
