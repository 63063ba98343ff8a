package launch

import (
	"context"

	"github.com/flatagents/flatagents/expression"
	"github.com/flatagents/flatagents/machine"
)

// InProcess runs a child machine in a goroutine within the same process,
// the default invoker for single-process deployments. The child's completion
// is published to Results under ResultKey so the parent's
// Launcher.awaitResult observes it.
type InProcess struct {
	Registry    *Registry
	AgentLookup func(name string) (machine.Executor, bool)
	Strategy    machine.StrategyFunc
	Hooks       machine.Hooks
	Snapshots   machine.SnapshotStore
	Results     machine.ResultStore
	Simple      expression.Engine
	CEL         expression.Engine

	// Launch is set after construction to this InProcess's own Launcher (or
	// another Launcher wrapping it), letting a child machine itself launch
	// grandchildren. It is optional: a child config with no machine-launch
	// states never dereferences it.
	Launch machine.LaunchFunc
}

// Launch implements the Invoker interface.
func (p *InProcess) Launch(ctx context.Context, childID machine.ExecutionId, target string, input map[string]any) error {
	cfg, err := p.Registry.Resolve(target)
	if err != nil {
		return err
	}

	in := &machine.Interpreter{
		Config:      cfg,
		AgentLookup: p.AgentLookup,
		Strategy:    p.Strategy,
		Hooks:       p.Hooks,
		Snapshots:   p.Snapshots,
		Results:     p.Results,
		Launch:      p.Launch,
		Simple:      p.Simple,
		CEL:         p.CEL,
	}

	go func() {
		runCtx := context.WithoutCancel(ctx)
		snap, runErr := in.Run(runCtx, childID, input)

		result := map[string]any{}
		if runErr != nil {
			if me, ok := runErr.(*machine.Error); ok {
				result["error"] = map[string]any{"type": string(me.Type), "code": me.Code, "message": me.Message}
			} else {
				result["error"] = map[string]any{"type": "launch", "code": "CHILD_FAILED", "message": runErr.Error()}
			}
		} else {
			result["output"] = snap.Output
		}

		if p.Results != nil {
			_ = p.Results.Write(runCtx, ResultKey(childID), result)
		}
	}()

	return nil
}
