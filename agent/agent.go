// Package agent defines the pluggable task capability: a fixed
// three-step contract (prepare, process, parse) behind one interface,
// plus the registry that resolves capabilities by agent type.
package agent

import (
	"context"

	"github.com/tasklab/agentq/errors"
	"github.com/tasklab/agentq/task"
)

// Agent is one task capability. Implementations must be safe for
// concurrent use: one instance serves many in-flight tasks.
type Agent interface {
	// Type returns the agent type identifier this capability serves.
	Type() string

	// PrepareInput transforms the raw task payload into the process
	// input. Pure transform, no I/O.
	PrepareInput(payload string) (string, error)

	// Process performs the substantive work. It may be slow and
	// I/O-bound; failures surface as errors, never as partial data.
	Process(ctx context.Context, taskID, input string) (string, error)

	// ParseResponse normalizes the raw result into the profile shape
	// carried by success outcomes.
	ParseResponse(raw string) (task.Profile, error)
}

// Execute runs the three-step contract for one task. Every failure
// comes back as a coded error: step errors keep their code when
// already classified, plain errors become AGENT_ERROR, and panics
// become PROCESSING_ERROR. A panic never escapes.
func Execute(ctx context.Context, a Agent, taskID, payload string) (profile task.Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()

	input, err := a.PrepareInput(payload)
	if err != nil {
		return task.Profile{}, classify(err, taskID, "preparing input")
	}

	raw, err := a.Process(ctx, taskID, input)
	if err != nil {
		return task.Profile{}, classify(err, taskID, "processing task")
	}

	profile, err = a.ParseResponse(raw)
	if err != nil {
		return task.Profile{}, classify(err, taskID, "parsing response")
	}
	return profile, nil
}

func classify(err error, taskID, step string) error {
	var structured *errors.Error
	if errors.AsError(err, &structured) {
		return errors.Wrap(err, step, errors.WithTaskID(taskID))
	}
	return errors.WrapWithCode(err, errors.ErrCodeAgentError, step, errors.WithTaskID(taskID))
}
