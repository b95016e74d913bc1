// Package llm provides the completion providers behind LLM-backed
// agent capabilities. One Provider interface, three implementations:
// Anthropic, OpenAI and Google Gemini.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Request is a single completion request.
type Request struct {
	// System is the system prompt; empty means none.
	System string `json:"system,omitempty"`

	// Prompt is the user prompt.
	Prompt string `json:"prompt"`

	// MaxTokens caps the completion length. 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// Provider is the interface for completion providers.
type Provider interface {
	// Complete sends a request and returns the completion text.
	Complete(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	// Provider is one of anthropic, openai, google.
	Provider string

	// Model is the model identifier; empty uses the provider default.
	Model string

	// APIKey authenticates against the provider.
	APIKey string

	// MaxTokens is the default completion cap. Default: 1024.
	MaxTokens int

	// Retry configures backoff for transient failures.
	Retry RetryConfig
}

// RetryConfig holds retry settings for provider calls.
type RetryConfig struct {
	MaxRetries  int           // default 5
	InitBackoff time.Duration // default 1s
	MaxBackoff  time.Duration // default 60s
}

// Retry defaults.
const (
	defaultMaxRetries  = 5
	defaultInitBackoff = time.Second
	defaultMaxBackoff  = 60 * time.Second
	backoffFactor      = 2.0
	defaultMaxTokens   = 1024
)

func (r RetryConfig) withDefaults() RetryConfig {
	if r.MaxRetries <= 0 {
		r.MaxRetries = defaultMaxRetries
	}
	if r.InitBackoff <= 0 {
		r.InitBackoff = defaultInitBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = defaultMaxBackoff
	}
	return r
}

// New creates a provider from configuration.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	case "google":
		return NewGoogleProvider(context.Background(), cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (want anthropic, openai or google)", cfg.Provider)
	}
}

// withRetry runs call with exponential backoff on transient failures.
func withRetry(ctx context.Context, retry RetryConfig, provider string, call func() error) error {
	retry = retry.withDefaults()
	backoff := retry.InitBackoff

	var err error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		err = call()
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return fmt.Errorf("%s request failed: %w", provider, err)
		}
		if attempt == retry.MaxRetries {
			return fmt.Errorf("%s request failed after %d retries: %w", provider, retry.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > retry.MaxBackoff {
			backoff = retry.MaxBackoff
		}
	}
	return err
}

// isRateLimitError checks if the error is a rate limit error.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "capacity")
}

// isServerError checks if the error is a transient server error (5xx).
func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") ||
		strings.Contains(errStr, "temporarily unavailable")
}

// isRetryableError checks if the error is retryable (rate limit or server error).
func isRetryableError(err error) bool {
	return isRateLimitError(err) || isServerError(err)
}

// MockProvider is a canned provider for tests.
type MockProvider struct {
	// Response is returned by Complete when Err is nil.
	Response string

	// Err is returned by Complete when set.
	Err error

	// Requests records every request received.
	Requests []Request
}

// Complete implements Provider.
func (m *MockProvider) Complete(_ context.Context, req Request) (string, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}
