package task

import (
	"encoding/json"
	"errors"
	"strings"
)

// Common errors.
var (
	// ErrInvalidMessage indicates the message body could not be decoded
	// or is missing required fields.
	ErrInvalidMessage = errors.New("invalid task message")
)

// Status represents the current state of a task in the status store.
type Status string

const (
	// StatusQueued indicates the task has been submitted but not claimed.
	StatusQueued Status = "queued"

	// StatusRunning indicates a processor has claimed the task.
	StatusRunning Status = "running"

	// StatusDone indicates the task completed successfully.
	StatusDone Status = "done"

	// StatusFailed indicates the task failed during execution.
	StatusFailed Status = "failed"

	// StatusCanceled indicates the task was canceled before being claimed.
	StatusCanceled Status = "canceled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the status is a terminal state.
// Terminal tasks are never transitioned again; redelivery of a
// terminal task is absorbed as a no-op.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCanceled
}

// Message is the queue envelope for one unit of work.
//
// TaskID is generated by the submitter and serves as both the
// idempotency key and the correlation key. UserID is carried through
// unchanged. AgentType selects the capability that handles the task;
// empty selects the configured default.
type Message struct {
	TaskID    string `json:"task_id"`
	UserID    string `json:"user_id"`
	Payload   string `json:"payload"`
	AgentType string `json:"agent_type,omitempty"`
}

// Validate checks that the message carries the fields the processor
// cannot work without.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.TaskID) == "" {
		return ErrInvalidMessage
	}
	if strings.TrimSpace(m.UserID) == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Encode serializes the message to its JSON wire form.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a queue message body. A failure here marks the
// message as poison: it can never succeed and must be acknowledged and
// dropped rather than redelivered forever.
func DecodeMessage(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, ErrInvalidMessage
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
