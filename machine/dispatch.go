package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/flatagents/flatagents/expression"
)

// dispatch executes a non-final state's payload and returns the raw output
// to merge via output_to_context (§3 "mutually constrained" state shapes).
// The result is usually a map[string]any but may be a bare []any for a
// multi-result fan-out (parallel-sample execution, unkeyed foreach).
func (in *Interpreter) dispatch(ctx context.Context, parent ExecutionId, state *State, ctxVal Context) (any, error) {
	switch {
	case state.IsAgent():
		return in.dispatchAgent(ctx, state, ctxVal)
	case state.IsAction():
		return in.dispatchAction(ctx, state, ctxVal)
	case state.IsMachineLaunch():
		return in.dispatchMachineLaunch(ctx, parent, state, ctxVal)
	case state.IsFireAndForget():
		return in.dispatchFireAndForget(ctx, parent, state, ctxVal)
	default:
		// A state with no payload (such as a bare initial state) produces no
		// output and proceeds straight to its transitions.
		return nil, nil
	}
}

func (in *Interpreter) dispatchAgent(ctx context.Context, state *State, ctxVal Context) (any, error) {
	exec, ok := in.AgentLookup(state.Agent)
	if !ok {
		return nil, &Error{Type: ErrorTypeConfiguration, Code: "UNKNOWN_AGENT", Message: "no agent registered: " + state.Agent, State: state.Name}
	}

	renderedInput, err := in.renderValue(state.Name, map[string]any(state.Input), scope(ctxVal, nil, nil))
	if err != nil {
		return nil, err
	}
	input, _ := renderedInput.(map[string]any)

	callCtx := ctx
	var cancel context.CancelFunc
	if state.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(state.Timeout*float64(time.Second)))
		defer cancel()
	}

	strategyFn := in.Strategy
	if strategyFn == nil {
		strategyFn = func(ctx context.Context, exec Executor, input map[string]any, _ *ExecutionConfig) ([]*AgentResult, error) {
			r, err := exec.Execute(ctx, input)
			if err != nil {
				return nil, err
			}
			return []*AgentResult{r}, nil
		}
	}

	results, err := strategyFn(callCtx, exec, input, state.Execution)
	if err != nil {
		return nil, &Error{Type: ErrorTypeAgent, Code: "EXECUTOR_ERROR", Message: err.Error(), State: state.Name, Cause: err}
	}
	if len(results) == 0 {
		return nil, &Error{Type: ErrorTypeAgent, Code: "EXECUTOR_ERROR", Message: "execution strategy returned no results", State: state.Name}
	}

	// A single result flattens onto the output map directly, the common
	// case (default/retry/mdap_voting, or parallel sampling with
	// n_samples=1). A parallel sample with n_samples>1 surfaces every
	// AgentResult as a bare ordered list instead (§4.F "return a list of N
	// AgentResults in launch order"), since there is no single winner to
	// flatten.
	if len(results) == 1 {
		if results[0].Error != nil {
			return nil, FromAgentError(state.Name, results[0].Error)
		}
		return agentResultToMap(results[0]), nil
	}

	samples := make([]any, len(results))
	for i, r := range results {
		samples[i] = agentResultToMap(r)
	}
	return samples, nil
}

// agentResultToMap flattens an AgentResult into the JSON-object shape an
// `output_to_context` expression binds against (§3 "AgentResult").
func agentResultToMap(result *AgentResult) map[string]any {
	out := map[string]any{
		"output":        result.Output,
		"content":       result.Content,
		"finish_reason": result.FinishReason,
		"cost":          result.Cost,
	}
	if result.Usage != nil {
		out["usage"] = map[string]any{
			"prompt_tokens":     result.Usage.PromptTokens,
			"completion_tokens": result.Usage.CompletionTokens,
			"total_tokens":      result.Usage.TotalTokens,
		}
	}
	if result.Error != nil {
		out["error"] = map[string]any{
			"code":      string(result.Error.Code),
			"message":   result.Error.Message,
			"retryable": result.Error.Retryable,
		}
	}
	return out
}

func (in *Interpreter) dispatchAction(ctx context.Context, state *State, ctxVal Context) (map[string]any, error) {
	newCtx, err := in.Hooks.runAction(state.Action, ctxVal)
	if err != nil {
		return nil, &Error{Type: ErrorTypeAgent, Code: "ACTION_ERROR", Message: err.Error(), State: state.Name, Cause: err}
	}
	for k := range ctxVal {
		delete(ctxVal, k)
	}
	for k, v := range newCtx {
		ctxVal[k] = v
	}
	return nil, nil
}

func (in *Interpreter) dispatchMachineLaunch(ctx context.Context, parent ExecutionId, state *State, ctxVal Context) (any, error) {
	if in.Launch == nil {
		return nil, &Error{Type: ErrorTypeLaunch, Code: "LAUNCH_UNCONFIGURED", Message: "no launcher configured for machine-launch state", State: state.Name}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if state.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(state.Timeout*float64(time.Second)))
		defer cancel()
	}

	targets, jobs, keys, err := in.machineLaunchJobs(state, ctxVal)
	if err != nil {
		return nil, err
	}

	mode := state.Mode
	if mode == "" {
		mode = "settled"
	}

	// Every job is launched concurrently (§5 "spawn concurrent work"); an
	// `any`-mode fan-out cancels the shared context the moment one sibling
	// succeeds, which unblocks the others' Launch (their result-backend Read
	// observes ctx.Done) without waiting for them to actually finish (§4.H
	// "any" — cancellation is cooperative and best-effort).
	fanCtx := callCtx
	if mode == "any" {
		var fanCancel context.CancelFunc
		fanCtx, fanCancel = context.WithCancel(callCtx)
		defer fanCancel()
	}

	type launchResult struct {
		idx     int
		outcome *LaunchOutcome
		err     error
	}
	results := make(chan launchResult, len(jobs))
	for i, input := range jobs {
		go func(i int, target string, input map[string]any) {
			outcome, err := in.Launch(fanCtx, parent, target, input)
			results <- launchResult{idx: i, outcome: outcome, err: err}
		}(i, targets[i], input)
	}

	outcomes := make([]*LaunchOutcome, len(jobs))
	var firstErr *Error
	var launchErr error
	succeeded := false
	for remaining := len(jobs); remaining > 0; remaining-- {
		r := <-results
		if r.err != nil {
			launchErr = r.err
			continue
		}
		outcomes[r.idx] = r.outcome
		if r.outcome.Err != nil && firstErr == nil {
			firstErr = r.outcome.Err
		}
		if mode == "any" && r.outcome.Err == nil {
			succeeded = true
			break
		}
	}

	if mode == "any" {
		if !succeeded {
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, &Error{Type: ErrorTypeLaunch, Code: "LAUNCH_FAILED", Message: launchErrMessage(launchErr), State: state.Name, Cause: launchErr}
		}
	} else {
		if launchErr != nil {
			return nil, &Error{Type: ErrorTypeLaunch, Code: "LAUNCH_FAILED", Message: launchErr.Error(), State: state.Name, Cause: launchErr}
		}
		if firstErr != nil {
			return nil, firstErr
		}
	}

	if keys != nil {
		keyed := make(map[string]any, len(outcomes))
		for i, o := range outcomes {
			if o == nil {
				continue
			}
			keyed[keys[i]] = o.Output
		}
		return keyed, nil
	}

	// `foreach` without `key` always collects into a bare ordered list
	// matching input order (§4.H "else into an ordered list matching input
	// order"), even when the collection has exactly one element or is
	// empty — unlike the single-`machine` blocking case below, whose output
	// is the one child's output unwrapped, not a list of one.
	if state.Foreach != "" {
		ordered := make([]any, len(outcomes))
		for i, o := range outcomes {
			if o != nil {
				ordered[i] = o.Output
			}
		}
		return ordered, nil
	}

	if outcomes[0] == nil {
		return nil, nil
	}
	return outcomes[0].Output, nil
}

func launchErrMessage(err error) string {
	if err == nil {
		return "all siblings failed to launch"
	}
	return err.Error()
}

// machineLaunchJobs resolves the list of per-launch (target, input) pairs
// for a machine-launch state (§4.H "Blocking machine state" / "Parallel
// machine state" / "Foreach"):
//   - `foreach` set: one target (`machine`'s single name), one job per
//     collection element, bound as `as` (default "item") in the render
//     scope; `key` (if set) keys the result map, else results collect into
//     an ordered list matching input order.
//   - no `foreach`, `machine` is a list of ≥2 distinct names: one job per
//     named target, all rendered against the same ambient context, results
//     keyed by machine name (§4.H "settled ... indexed by name").
//   - no `foreach`, a single `machine` name: one job, one target.
func (in *Interpreter) machineLaunchJobs(state *State, ctxVal Context) ([]string, []map[string]any, []string, error) {
	if state.Foreach == "" {
		if len(state.Machine) > 1 {
			rendered, err := in.renderValue(state.Name, map[string]any(state.Input), scope(ctxVal, nil, nil))
			if err != nil {
				return nil, nil, nil, err
			}
			input, _ := rendered.(map[string]any)
			jobs := make([]map[string]any, len(state.Machine))
			keys := make([]string, len(state.Machine))
			for i, target := range state.Machine {
				jobs[i] = input
				keys[i] = target
			}
			return state.Machine, jobs, keys, nil
		}

		rendered, err := in.renderValue(state.Name, map[string]any(state.Input), scope(ctxVal, nil, nil))
		if err != nil {
			return nil, nil, nil, err
		}
		input, _ := rendered.(map[string]any)
		target := ""
		if len(state.Machine) > 0 {
			target = state.Machine[0]
		}
		return []string{target}, []map[string]any{input}, nil, nil
	}

	items, err := in.evalExpr(state.Name, state.Foreach, scope(ctxVal, nil, nil))
	if err != nil {
		return nil, nil, nil, err
	}
	collection, ok := items.([]any)
	if !ok {
		return nil, nil, nil, &Error{Type: ErrorTypeExpression, Code: "FOREACH_NOT_A_LIST", Message: "foreach expression did not evaluate to a list", State: state.Name}
	}

	as := state.As
	if as == "" {
		as = "item"
	}
	target := ""
	if len(state.Machine) > 0 {
		target = state.Machine[0]
	}

	targets := make([]string, len(collection))
	jobs := make([]map[string]any, len(collection))
	var keys []string
	if state.Key != "" {
		keys = make([]string, len(collection))
	}
	for i, item := range collection {
		itemCtx := ctxVal.ToMap()
		itemScope := map[string]any{}
		for k, v := range itemCtx {
			itemScope[k] = v
		}
		itemScope[as] = item

		rendered, err := in.renderValue(state.Name, map[string]any(state.Input), expression.Scope{Context: itemScope})
		if err != nil {
			return nil, nil, nil, err
		}
		input, _ := rendered.(map[string]any)
		targets[i] = target
		jobs[i] = input

		if keys != nil {
			keyVal, err := in.evalExpr(state.Name, state.Key, expression.Scope{Context: itemScope})
			if err != nil {
				return nil, nil, nil, err
			}
			keys[i] = fmt.Sprintf("%v", keyVal)
		}
	}
	return targets, jobs, keys, nil
}

func (in *Interpreter) dispatchFireAndForget(ctx context.Context, parent ExecutionId, state *State, ctxVal Context) (map[string]any, error) {
	if in.Launch == nil {
		return nil, &Error{Type: ErrorTypeLaunch, Code: "LAUNCH_UNCONFIGURED", Message: "no launcher configured for fire-and-forget state", State: state.Name}
	}

	renderedInput, err := in.renderValue(state.Name, map[string]any(state.LaunchInput), scope(ctxVal, nil, nil))
	if err != nil {
		return nil, err
	}
	input, _ := renderedInput.(map[string]any)

	for _, target := range state.Launch {
		go func(target string) {
			_, _ = in.Launch(context.WithoutCancel(ctx), parent, target, input)
		}(target)
	}
	return nil, nil
}
