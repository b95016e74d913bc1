// Package errors provides the structured error taxonomy used across
// agentq. Every failure that can surface in a task outcome carries a
// stable code; every failure the worker has to decide to retry or give
// up on carries a category.
//
// # Categories
//
//   - Transient: temporary failures where retry may succeed (queue or
//     store unreachable, provider rate limits, timeouts)
//   - Permanent: failures where retry will not help (malformed message,
//     unknown agent type, canceled task)
//   - Internal: unexpected errors indicating bugs (recovered panics,
//     invariant violations)
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.ErrCodeAgentError, "profile generation failed")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "writing task status")
//
// Extract the code for a failure outcome:
//
//	code := errors.CodeOf(err)
//
// Errors are errors.Is/As compatible and marshal to the JSON shape
// published in failure outcomes.
package errors
