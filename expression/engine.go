// Package expression implements the templated-expression engine that the
// interpreter uses to evaluate transition conditions and render context/input
// mappings. Two engines are provided behind the same interface: a hand-rolled
// "simple" engine (the required default) and an expr-lang-backed "cel" engine
// (opt-in, for comprehensions and richer string/duration handling).
package expression

import "fmt"

// Scope is the read-only evaluation environment passed to Evaluate/Render.
// context is the machine's mutable Context; input and output are populated
// only at the points in the interpreter where they are defined (§4.A).
type Scope struct {
	Context map[string]any
	Input   map[string]any
	Output  any
}

// asMap flattens a Scope into the single map most expression backends expect.
func (s Scope) asMap() map[string]any {
	m := make(map[string]any, len(s.Context)+3)
	for k, v := range s.Context {
		m[k] = v
	}
	m["context"] = s.Context
	m["input"] = s.Input
	m["output"] = s.Output
	return m
}

// Engine evaluates expressions and renders templates against a Scope.
// Implementations must be pure: the same expression and scope always produce
// the same result, with no side effects and no environment reads (§4.A).
type Engine interface {
	// Evaluate runs a bare expression (no {{ }} delimiters) and returns its
	// native value.
	Evaluate(expr string, scope Scope) (any, error)

	// Render processes template text containing {{ expr }} substitutions. If
	// the entire string is exactly one {{ ... }} substitution, the native
	// value is returned (not stringified); otherwise each substitution is
	// stringified and concatenated with the surrounding literal text.
	Render(text string, scope Scope) (any, error)
}

// Error is a well-defined expression-evaluation failure, surfaced to callers
// that bind a context value to an expression (§4.A, §7 "Expression" taxonomy).
type Error struct {
	Path   string // the dotted binding path being evaluated, if any
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("expression error at %q: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("expression error: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTruthy follows JSON truthiness: false, null, 0, "", and empty containers
// are false; everything else is true.
func IsTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
