// Package strategy implements the execution strategies an agent state may
// select (§4.F): default (single call), retry (backoff + jitter), parallel
// sample (N concurrent calls, all N returned in launch order), and
// mdap_voting (N concurrent calls, majority-equal output wins).
package strategy

import (
	"context"

	"github.com/flatagents/flatagents/machine"
)

// Strategy executes an agent call according to a machine.ExecutionConfig and
// returns every AgentResult it produced, in launch order (§4.F). default,
// retry, and mdap_voting always return exactly one; parallel sampling
// returns cfg.NSamples.
type Strategy interface {
	Execute(ctx context.Context, exec machine.Executor, input map[string]any, cfg *machine.ExecutionConfig) ([]*machine.AgentResult, error)
}

// Select returns the Strategy named by cfg.Type, defaulting to Default when
// cfg is nil or cfg.Type is empty (§4.F).
func Select(cfg *machine.ExecutionConfig) Strategy {
	if cfg == nil {
		return Default{}
	}
	switch cfg.Type {
	case "retry":
		return Retry{}
	case "parallel":
		return ParallelSample{}
	case "mdap_voting":
		return MDAPVoting{}
	default:
		return Default{}
	}
}

// isSuccess reports whether an AgentResult represents an agent-level success
// (no AgentError attached), the uniform check every strategy uses to decide
// whether a call needs to be retried or re-sampled.
func isSuccess(r *machine.AgentResult) bool {
	return r != nil && r.Error == nil
}
