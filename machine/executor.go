package machine

import "context"

// Executor is the single operation an agent implementation must provide
// (§4.B). It is declared here, in the core package, so the interpreter can
// depend on it without importing any concrete executor package; agentexec's
// HTTP/in-process implementations satisfy this interface structurally.
type Executor interface {
	Execute(ctx context.Context, input map[string]any) (*AgentResult, error)
}
