package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tasklab/agentq/task"
)

// MockType is the agent type served by the mock capability.
const MockType = "mock"

// Mock is a deterministic profile generator, the baseline capability
// for local runs and tests. Delay simulates the latency of a real
// model call; tests run it at zero.
type Mock struct {
	Delay time.Duration
}

// NewMock creates a mock agent with the given processing delay.
func NewMock(delay time.Duration) *Mock {
	return &Mock{Delay: delay}
}

// Type implements Agent.
func (m *Mock) Type() string { return MockType }

// PrepareInput implements Agent. The payload passes through trimmed.
func (m *Mock) PrepareInput(payload string) (string, error) {
	return strings.TrimSpace(payload), nil
}

// Process implements Agent. It sleeps for the configured delay, then
// emits a canned profile referencing the input.
func (m *Mock) Process(ctx context.Context, taskID, input string) (string, error) {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	profile := task.Profile{
		Tags:   []string{"electronics", "price-sensitive"},
		Score:  95,
		Reason: fmt.Sprintf("user watched content: %s", input),
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseResponse implements Agent.
func (m *Mock) ParseResponse(raw string) (task.Profile, error) {
	var p task.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return task.Profile{}, fmt.Errorf("mock result not valid JSON: %w", err)
	}
	return p, nil
}
