package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tasklab/agentq/task"
)

// MemoryStore implements StatusStore with in-process TTL entries.
// Expiry is checked on read; a background ticker sweeps the rest.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]memEntry
	closed atomic.Bool

	ticker *time.Ticker
	done   chan struct{}
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryStore creates an in-memory status store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data:   make(map[string]memEntry),
		ticker: time.NewTicker(time.Second),
		done:   make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryStore) sweep() {
	for {
		select {
		case <-s.ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, e := range s.data {
				if !e.expires.IsZero() && now.After(e.expires) {
					delete(s.data, k)
				}
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) get(key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *MemoryStore) put(key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}

	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.data[key] = e
	s.mu.Unlock()
	return nil
}

// GetStatus returns the current status of a task.
func (s *MemoryStore) GetStatus(ctx context.Context, taskID string) (task.Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := s.get(StatusKey(taskID))
	if err != nil {
		return "", err
	}
	return task.Status(v), nil
}

// SetStatus writes the status and refreshes the TTL.
func (s *MemoryStore) SetStatus(ctx context.Context, taskID string, status task.Status, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(StatusKey(taskID), []byte(status), ttl)
}

// SetStatusWithResult writes status and result under one lock.
func (s *MemoryStore) SetStatusWithResult(ctx context.Context, taskID string, status task.Status, result []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.data[StatusKey(taskID)] = memEntry{value: []byte(status), expires: expires}
	s.data[ResultKey(taskID)] = memEntry{value: append([]byte(nil), result...), expires: expires}
	s.mu.Unlock()
	return nil
}

// GetResult returns the retained result data for a task.
func (s *MemoryStore) GetResult(ctx context.Context, taskID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.get(ResultKey(taskID))
}

// Delete removes a task's entries.
func (s *MemoryStore) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	delete(s.data, StatusKey(taskID))
	delete(s.data, ResultKey(taskID))
	s.mu.Unlock()
	return nil
}

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Close shuts the store down.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.ticker.Stop()
	close(s.done)
	return nil
}
