package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tasklab/agentq/task"
)

// Common errors.
var (
	// ErrNotFound indicates the task has no status entry, either
	// because it never existed or because its TTL expired.
	ErrNotFound = errors.New("task not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store closed")
)

// StatusStore is the single source of truth for task status. Entries
// are keyed by task id and expire after a TTL counted from the last
// write. Keys are logically partitioned by task id: concurrent
// processors never contend on the same key under correct operation.
type StatusStore interface {
	// GetStatus returns the current status of a task.
	// Returns ErrNotFound when the key is absent or expired.
	GetStatus(ctx context.Context, taskID string) (task.Status, error)

	// SetStatus writes the status and refreshes the TTL.
	SetStatus(ctx context.Context, taskID string, status task.Status, ttl time.Duration) error

	// SetStatusWithResult writes the terminal status and the retained
	// result data as one atomic update.
	SetStatusWithResult(ctx context.Context, taskID string, status task.Status, result []byte, ttl time.Duration) error

	// GetResult returns the retained result data for a task.
	// Returns ErrNotFound when absent or expired.
	GetResult(ctx context.Context, taskID string) ([]byte, error)

	// Delete removes a task's status and result entries. Used by the
	// API to compensate when enqueueing fails after the status write.
	Delete(ctx context.Context, taskID string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// StatusKey returns the status key for a task id.
func StatusKey(taskID string) string {
	return fmt.Sprintf("task:%s:status", taskID)
}

// ResultKey returns the result key for a task id.
func ResultKey(taskID string) string {
	return fmt.Sprintf("task:%s:result", taskID)
}
