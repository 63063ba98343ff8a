package machine

// Hooks is a record of optional function-valued lifecycle callbacks (§4.G,
// §9 "Hooks that look like subclassable classes" → a record, not a
// subclassable base type; composition is by wrapping one Hooks value around
// another, not inheritance). All fields are optional; a nil field means the
// interpreter runs that lifecycle point with no hook.
type Hooks struct {
	OnMachineStart func(ctx Context) (Context, error)
	OnMachineEnd   func(ctx Context, output map[string]any) (map[string]any, error)
	OnStateEnter   func(state string, ctx Context) (Context, error)
	OnStateExit    func(state string, ctx Context, output any) (any, error)
	OnTransition   func(from, to string, ctx Context) (string, error)
	// OnError returns the alternate state to recover into, or ("", nil) to
	// rethrow (§4.G).
	OnError func(state string, err error, ctx Context) (string, error)
	OnAction func(action string, ctx Context) (Context, error)
}

func (h Hooks) runMachineStart(ctx Context) (Context, error) {
	if h.OnMachineStart == nil {
		return ctx, nil
	}
	return h.OnMachineStart(ctx)
}

func (h Hooks) runMachineEnd(ctx Context, output map[string]any) (map[string]any, error) {
	if h.OnMachineEnd == nil {
		return output, nil
	}
	return h.OnMachineEnd(ctx, output)
}

func (h Hooks) runStateEnter(state string, ctx Context) (Context, error) {
	if h.OnStateEnter == nil {
		return ctx, nil
	}
	return h.OnStateEnter(state, ctx)
}

func (h Hooks) runStateExit(state string, ctx Context, output any) (any, error) {
	if h.OnStateExit == nil {
		return output, nil
	}
	return h.OnStateExit(state, ctx, output)
}

func (h Hooks) runTransition(from, to string, ctx Context) (string, error) {
	if h.OnTransition == nil {
		return to, nil
	}
	return h.OnTransition(from, to, ctx)
}

// runError returns (target, handled, err). handled is false when no OnError
// hook is registered at all, letting the caller distinguish "no hook" from
// "hook explicitly chose to rethrow".
func (h Hooks) runError(state string, cause error, ctx Context) (target string, handled bool, err error) {
	if h.OnError == nil {
		return "", false, nil
	}
	target, err = h.OnError(state, cause, ctx)
	return target, true, err
}

func (h Hooks) runAction(action string, ctx Context) (Context, error) {
	if h.OnAction == nil {
		return ctx, nil
	}
	return h.OnAction(action, ctx)
}
