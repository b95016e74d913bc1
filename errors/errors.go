package errors

import (
	"encoding/json"
	"fmt"
)

// Error is a structured error carrying a stable code, a handling
// category, and an optional cause chain. Failure outcomes publish the
// code and message; everything else is for logs and retry decisions.
type Error struct {
	code     Code
	category Category
	message  string
	cause    error
	taskID   string
}

var (
	_ error          = (*Error)(nil)
	_ json.Marshaler = (*Error)(nil)
)

// Error returns the error message, including the cause when present.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the stable error code.
func (e *Error) Code() Code {
	return e.code
}

// Category returns the handling category.
func (e *Error) Category() Category {
	return e.category
}

// Message returns the message without the cause chain, the form that
// travels in failure outcomes.
func (e *Error) Message() string {
	return e.message
}

// TaskID returns the related task ID, if set.
func (e *Error) TaskID() string {
	return e.taskID
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable returns whether the operation may succeed on retry.
func (e *Error) Retryable() bool {
	return e.category.IsRetryable()
}

type errorJSON struct {
	Code     Code     `json:"code"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Cause    string   `json:"cause,omitempty"`
	TaskID   string   `json:"task_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:     e.code,
		Category: e.category,
		Message:  e.message,
		TaskID:   e.taskID,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	return json.Marshal(j)
}

// Option configures an Error at construction.
type Option func(*Error)

// WithCategory overrides the code's default category.
func WithCategory(cat Category) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// WithTaskID sets the related task ID.
func WithTaskID(id string) Option {
	return func(e *Error) {
		e.taskID = id
	}
}

// New creates an Error with the given code and message.
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{
		code:     code,
		category: code.DefaultCategory(),
		message:  message,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Timeout creates a timeout error.
func Timeout(message string, opts ...Option) *Error {
	return New(ErrCodeTimeout, message, opts...)
}

// NotFound creates a not-found error.
func NotFound(message string, opts ...Option) *Error {
	return New(ErrCodeNotFound, message, opts...)
}

// InvalidMessage creates a poison-message error.
func InvalidMessage(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidMessage, message, opts...)
}

// UnknownAgent creates an error for an unregistered agent type.
func UnknownAgent(agentType string, opts ...Option) *Error {
	return New(ErrCodeUnknownAgent, fmt.Sprintf("unknown agent type %q", agentType), opts...)
}

// AgentFailure creates an error for a capability-reported business failure.
func AgentFailure(message string, opts ...Option) *Error {
	return New(ErrCodeAgentError, message, opts...)
}

// Processing creates an error for an unexpected fault during task processing.
func Processing(message string, opts ...Option) *Error {
	return New(ErrCodeProcessing, message, opts...)
}

// RateLimited creates a provider rate-limit error.
func RateLimited(message string, opts ...Option) *Error {
	return New(ErrCodeRateLimited, message, opts...)
}

// Canceled creates a cancellation error.
func Canceled(message string, opts ...Option) *Error {
	return New(ErrCodeCanceled, message, opts...)
}

// StoreUnavailable creates an error for an unreachable status store.
func StoreUnavailable(message string, opts ...Option) *Error {
	return New(ErrCodeStoreUnavailable, message, opts...)
}

// QueueUnavailable creates an error for an unreachable message queue.
func QueueUnavailable(message string, opts ...Option) *Error {
	return New(ErrCodeQueueUnavailable, message, opts...)
}
