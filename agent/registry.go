package agent

import (
	"fmt"
	"sync"

	"github.com/tasklab/agentq/errors"
)

// ErrUnknownAgent is returned when no capability is registered for an
// agent type. It carries the UNKNOWN_AGENT code for failure outcomes.
var ErrUnknownAgent = errors.New(errors.ErrCodeUnknownAgent, "unknown agent type")

// Registry resolves agent capabilities by type. The empty type
// resolves to the configured default; any other unregistered type is
// an error, never a silent fallback.
type Registry struct {
	mu          sync.RWMutex
	agents      map[string]Agent
	defaultType string
}

// NewRegistry creates a registry with defaultType answering requests
// that carry no agent type.
func NewRegistry(defaultType string) *Registry {
	return &Registry{
		agents:      make(map[string]Agent),
		defaultType: defaultType,
	}
}

// Register adds a capability under its type. Registering the same
// type twice replaces the earlier capability.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	r.agents[a.Type()] = a
	r.mu.Unlock()
}

// Resolve returns the capability for an agent type. The empty type
// resolves the default.
func (r *Registry) Resolve(agentType string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if agentType == "" {
		agentType = r.defaultType
	}
	a, ok := r.agents[agentType]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAgent, "no capability registered for %q", agentType)
	}
	return a, nil
}

// Types returns the registered agent types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.agents))
	for t := range r.agents {
		out = append(out, t)
	}
	return out
}

// String describes the registry for startup logs.
func (r *Registry) String() string {
	return fmt.Sprintf("registry(default=%s, agents=%d)", r.defaultType, len(r.Types()))
}
