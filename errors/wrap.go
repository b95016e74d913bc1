package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the
// error chain. A nil err returns nil. An existing *Error keeps its
// code and category; context errors map to TIMEOUT/CANCELED; anything
// else becomes a PROCESSING_ERROR.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var structured *Error
	if errors.As(err, &structured) {
		wrapped := &Error{
			code:     structured.code,
			category: structured.category,
			message:  message,
			cause:    err,
			taskID:   structured.taskID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeProcessing, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...any) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error under a specific code, replacing
// whatever classification the chain carried.
func WrapWithCode(err error, code Code, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsError reports whether the chain contains a structured *Error,
// storing it in target when it does.
func AsError(err error, target **Error) bool {
	return errors.As(err, target)
}

// Is reports whether any error in the chain carries the given code.
func Is(err error, code Code) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.code == code
	}
	return false
}

// CodeOf extracts the code from an error chain. Unclassified errors
// report PROCESSING_ERROR so failure outcomes always carry a code.
func CodeOf(err error) Code {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.code
	}
	return ErrCodeProcessing
}

// MessageOf extracts the outcome-facing message from an error chain.
func MessageOf(err error) string {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Message()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsRetryable reports whether the operation may succeed on retry.
// Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Retryable()
	}
	return false
}

// IsTransient reports whether the chain carries a transient error.
func IsTransient(err error) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.category == CategoryTransient
	}
	return false
}

// RecoverPanic converts a recovered panic value into a processing error.
func RecoverPanic(recovered any) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodeProcessing, "recovered from panic: "+message)
}
