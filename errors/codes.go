package errors

// Category classifies errors by their nature and retry semantics.
type Category string

const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: queue or store unreachable, provider rate limits, timeouts.
	CategoryTransient Category = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: malformed message, unknown agent type, canceled task.
	CategoryPermanent Category = "permanent"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	// Examples: recovered panics, invariant violations.
	CategoryInternal Category = "internal"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c Category) IsRetryable() bool {
	return c == CategoryTransient
}

// Code identifies a specific failure type. Codes travel on the wire in
// failure outcomes, so they stay stable across releases.
type Code string

const (
	// Transient failures.
	ErrCodeTimeout          Code = "TIMEOUT"           // Operation timed out
	ErrCodeQueueUnavailable Code = "QUEUE_UNAVAILABLE" // Message queue unreachable
	ErrCodeStoreUnavailable Code = "STORE_UNAVAILABLE" // Status store unreachable
	ErrCodeRateLimited      Code = "RATE_LIMITED"      // Upstream provider rate limit

	// Permanent failures.
	ErrCodeInvalidMessage Code = "INVALID_MESSAGE" // Undecodable or incomplete message body
	ErrCodeUnknownAgent   Code = "UNKNOWN_AGENT"   // No capability registered for the agent type
	ErrCodeAgentError     Code = "AGENT_ERROR"     // Capability reported a business failure
	ErrCodeCanceled       Code = "CANCELED"        // Task or operation canceled
	ErrCodeNotFound       Code = "NOT_FOUND"       // Status store key absent or expired

	// Internal failures.
	ErrCodeProcessing Code = "PROCESSING_ERROR" // Unexpected fault while processing a task
)

// String returns the string representation of the code.
func (c Code) String() string {
	return string(c)
}

// DefaultCategory returns the category a code belongs to.
func (c Code) DefaultCategory() Category {
	switch c {
	case ErrCodeTimeout, ErrCodeQueueUnavailable, ErrCodeStoreUnavailable, ErrCodeRateLimited:
		return CategoryTransient
	case ErrCodeInvalidMessage, ErrCodeUnknownAgent, ErrCodeAgentError, ErrCodeCanceled, ErrCodeNotFound:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}
