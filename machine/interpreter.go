package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/flatagents/flatagents/expression"
)

// Interpreter runs the Loading → Initial → Executing → Transitioning →
// Final|Failed control loop over one Config (§3, §4.G). Every external
// dependency is injected as a narrow local interface or function value
// (SnapshotStore, ResultStore, StrategyFunc, LaunchFunc, Executor lookup) so
// this package never imports its own implementation packages.
type Interpreter struct {
	Config *Config

	// AgentLookup resolves a State.Agent name to its Executor.
	AgentLookup func(name string) (Executor, bool)

	// Strategy executes an agent call under the state's selected execution
	// strategy (§4.F). When nil, an agent state makes one direct Execute call.
	Strategy StrategyFunc

	// Hooks are the optional lifecycle callbacks (§4.G).
	Hooks Hooks

	// Snapshots persists checkpoints; may be nil to run without persistence
	// (e.g. tests), in which case checkpoint events are no-ops.
	Snapshots SnapshotStore

	// Results is the result backend of the host process. The interpreter
	// itself never reads it: result awaiting for machine-launch states
	// happens inside Launch. May be nil.
	Results ResultStore

	// Launch starts a child machine execution for machine-launch and
	// fire-and-forget states (§4.H). May be nil if the config has none.
	Launch LaunchFunc

	// Simple and CEL are the two expression engines a machine may select
	// between via Config.ExprEngine (§4.A).
	Simple expression.Engine
	CEL    expression.Engine
}

func (in *Interpreter) engine() expression.Engine {
	if in.Config.ExprEngine == "cel" && in.CEL != nil {
		return in.CEL
	}
	return in.Simple
}

func scope(ctxVal Context, input map[string]any, output any) expression.Scope {
	return expression.Scope{Context: ctxVal.ToMap(), Input: input, Output: output}
}

func (in *Interpreter) evalExpr(state string, expr string, sc expression.Scope) (any, error) {
	v, err := in.engine().Evaluate(expr, sc)
	if err != nil {
		return nil, NewExpressionError(state, expr, err)
	}
	return v, nil
}

func (in *Interpreter) renderValue(state string, v any, sc expression.Scope) (any, error) {
	switch t := v.(type) {
	case string:
		rendered, err := in.engine().Render(t, sc)
		if err != nil {
			return nil, NewExpressionError(state, t, err)
		}
		return rendered, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			r, err := in.renderValue(state, val, sc)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			r, err := in.renderValue(state, val, sc)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func findInitialState(cfg *Config) *State {
	for _, s := range cfg.States {
		if s.IsInitial() {
			return s
		}
	}
	return nil
}

// Run starts a new execution of in.Config with initialContext as the
// starting Context value.
func (in *Interpreter) Run(ctx context.Context, execID ExecutionId, initialContext map[string]any) (*Snapshot, error) {
	initial := findInitialState(in.Config)
	if initial == nil {
		return nil, &ConfigError{Reason: "machine has no initial state"}
	}

	c := Context(initialContext)
	if c == nil {
		c = Context{}
	}

	c, err := in.Hooks.runMachineStart(c)
	if err != nil {
		return nil, err
	}

	for path, expr := range in.Config.ContextInit {
		val, err := in.evalExpr(initial.Name, expr, scope(c, nil, nil))
		if err != nil {
			return nil, err
		}
		if err := c.Set(path, val); err != nil {
			return nil, NewExpressionError(initial.Name, path, err)
		}
	}

	snap := &Snapshot{
		ExecutionId:  execID,
		MachineName:  in.Config.Name,
		SpecVersion:  in.Config.SpecVersion,
		CurrentState: initial.Name,
		Context:      c.ToMap(),
		Step:         0,
		CreatedAt:    time.Now(),
	}
	in.checkpoint(ctx, snap, EventMachineStart)

	return in.loop(ctx, snap)
}

// Resume continues an in-flight execution from a previously persisted
// Snapshot (§4.H crash/resume).
func (in *Interpreter) Resume(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	return in.loop(ctx, snap)
}

func (in *Interpreter) checkpoint(ctx context.Context, snap *Snapshot, event string) {
	if in.Snapshots == nil {
		return
	}
	if on := in.Config.Persistence.CheckpointOn; len(on) > 0 {
		enabled := false
		for _, e := range on {
			if e == event {
				enabled = true
				break
			}
		}
		if !enabled {
			return
		}
	}
	snap.Event = event
	_ = in.Snapshots.Save(ctx, snap)
}

func (in *Interpreter) loop(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	cfg := in.Config
	maxSteps := cfg.Settings.MaxSteps
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}

	for {
		if snap.Step > maxSteps {
			return in.fail(ctx, snap, snap.CurrentState, &StepLimitExceededError{MaxSteps: maxSteps})
		}

		state, ok := cfg.States[snap.CurrentState]
		if !ok {
			return in.fail(ctx, snap, snap.CurrentState, &ConfigError{Reason: fmt.Sprintf("unknown state %q", snap.CurrentState)})
		}

		ctxVal := Context(snap.Context)
		ctxVal, err := in.Hooks.runStateEnter(state.Name, ctxVal)
		if err != nil {
			return in.fail(ctx, snap, state.Name, err)
		}
		snap.Context = ctxVal.ToMap()
		in.checkpoint(ctx, snap, EventStateEnter)

		if state.IsFinal() {
			return in.finish(ctx, snap, state, ctxVal)
		}

		output, dispatchErr := in.dispatch(ctx, snap.ExecutionId, state, ctxVal)
		if dispatchErr != nil {
			handledState, recovered, err := in.handleError(ctx, state, ctxVal, dispatchErr)
			if err != nil {
				return in.fail(ctx, snap, state.Name, err)
			}
			if !recovered {
				return in.fail(ctx, snap, state.Name, dispatchErr)
			}
			snap.CurrentState = handledState
			snap.Context = ctxVal.ToMap()
			snap.Step++
			continue
		}

		if err := in.mergeOutput(state, ctxVal, output); err != nil {
			return in.fail(ctx, snap, state.Name, err)
		}

		exitOutput, err := in.Hooks.runStateExit(state.Name, ctxVal, output)
		if err != nil {
			return in.fail(ctx, snap, state.Name, err)
		}

		next, err := in.evalTransitions(state, ctxVal, exitOutput)
		if err != nil {
			return in.fail(ctx, snap, state.Name, err)
		}
		if next == "" {
			return in.fail(ctx, snap, state.Name, &NoTransitionError{State: state.Name})
		}

		next, err = in.Hooks.runTransition(state.Name, next, ctxVal)
		if err != nil {
			return in.fail(ctx, snap, state.Name, err)
		}

		snap.CurrentState = next
		snap.Context = ctxVal.ToMap()
		snap.Step++
	}
}

// handleError applies a state's on_error spec, falling back to the Hooks'
// OnError, returning (targetState, recovered, err).
func (in *Interpreter) handleError(ctx context.Context, state *State, ctxVal Context, cause error) (string, bool, error) {
	var code string
	if me, ok := cause.(*Error); ok {
		code = me.Code
		_ = ctxVal.Merge(me.ToContextFields())
	}

	if state.OnError.IsSet() {
		if target, ok := state.OnError.Resolve(code); ok {
			return target, true, nil
		}
	}

	target, handled, err := in.Hooks.runError(state.Name, cause, ctxVal)
	if err != nil {
		return "", false, err
	}
	if handled && target != "" {
		return target, true, nil
	}
	return "", false, nil
}

func (in *Interpreter) evalTransitions(state *State, ctxVal Context, output any) (string, error) {
	sc := scope(ctxVal, nil, output)
	for _, t := range state.Transitions {
		if t.Condition == "" {
			return t.To, nil
		}
		result, err := in.evalExpr(state.Name, t.Condition, sc)
		if err != nil {
			return "", err
		}
		if expression.IsTruthy(result) {
			return t.To, nil
		}
	}
	return "", nil
}

func (in *Interpreter) mergeOutput(state *State, ctxVal Context, output any) error {
	if len(state.OutputToContext) == 0 || output == nil {
		return nil
	}
	resolved := make(map[string]any, len(state.OutputToContext))
	sc := scope(ctxVal, nil, output)
	for ctxPath, outExpr := range state.OutputToContext {
		val, err := in.evalExpr(state.Name, outExpr, sc)
		if err != nil {
			return err
		}
		resolved[ctxPath] = val
	}
	return ctxVal.Merge(resolved)
}

func (in *Interpreter) finish(ctx context.Context, snap *Snapshot, state *State, ctxVal Context) (*Snapshot, error) {
	output, err := in.renderValue(state.Name, state.Output, scope(ctxVal, nil, nil))
	if err != nil {
		return in.fail(ctx, snap, state.Name, err)
	}
	outputMap, _ := output.(map[string]any)

	outputMap, err = in.Hooks.runMachineEnd(ctxVal, outputMap)
	if err != nil {
		return in.fail(ctx, snap, state.Name, err)
	}

	snap.CurrentState = state.Name
	snap.Context = ctxVal.ToMap()
	snap.Output = outputMap
	in.checkpoint(ctx, snap, EventMachineEnd)
	return snap, nil
}

func (in *Interpreter) fail(ctx context.Context, snap *Snapshot, stateName string, cause error) (*Snapshot, error) {
	me := asMachineError(stateName, cause)
	snap.Output = me.ToContextFields()
	in.checkpoint(ctx, snap, EventError)
	return snap, me
}

// asMachineError classifies a raw error into the typed Error hierarchy so
// every failure path (including NoTransitionError/StepLimitExceededError/
// ConfigError, which predate the on_error mechanism and are never
// themselves *Error values) carries a stable Type/Code pair.
func asMachineError(stateName string, cause error) *Error {
	switch e := cause.(type) {
	case *Error:
		return e
	case *NoTransitionError:
		return &Error{Type: ErrorTypeTransition, Code: "NO_TRANSITION", Message: e.Error(), State: stateName, Cause: e}
	case *StepLimitExceededError:
		return &Error{Type: ErrorTypeBudget, Code: "STEP_LIMIT_EXCEEDED", Message: e.Error(), State: stateName, Cause: e}
	case *ConfigError:
		return &Error{Type: ErrorTypeConfiguration, Code: "INVALID_CONFIG", Message: e.Error(), State: stateName, Cause: e}
	default:
		return &Error{Type: ErrorTypeTransition, Code: "INTERNAL_ERROR", Message: cause.Error(), State: stateName, Cause: cause}
	}
}
