// Package agentexec defines the pluggable agent-executor contract (§4.B) and
// the concrete executor implementations wired in SPEC_FULL.md's domain stack.
package agentexec

import (
	"context"

	"github.com/flatagents/flatagents/machine"
)

// Func adapts a plain function to machine.Executor, used for in-process
// agents, tests, and hook-backed executors.
type Func func(ctx context.Context, input map[string]any) (*machine.AgentResult, error)

func (f Func) Execute(ctx context.Context, input map[string]any) (*machine.AgentResult, error) {
	return f(ctx, input)
}

// Registry resolves an agent name to its machine.Executor. The host
// application populates it; the interpreter never reflectively loads agent
// code itself (§9 "injected registry, not reflective loading").
type Registry struct {
	executors map[string]machine.Executor
}

// NewRegistry constructs an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]machine.Executor)}
}

// Register associates a name (matching a State.Agent reference) with a
// machine.Executor implementation.
func (r *Registry) Register(name string, e machine.Executor) {
	r.executors[name] = e
}

// Lookup resolves an agent name, returning (nil, false) if unregistered —
// the interpreter surfaces this at dispatch time as a configuration-type
// machine.Error with code UNKNOWN_AGENT.
func (r *Registry) Lookup(name string) (machine.Executor, bool) {
	e, ok := r.executors[name]
	return e, ok
}
