package expression

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// CELEngine is the opt-in "CEL mode" (§4.A): list comprehensions (all/any/
// filter/map), string methods, and duration/timestamp literals, backed by
// expr-lang/expr. There is no `exists` builtin; `any` is the existential
// form. A machine must set `expression_engine: cel` to select it.
//
// A single *CELEngine is shared across every concurrently-running
// interpreter (parent and every child spawned by a `machine: [..]` or
// `foreach` fan-out launch in its own goroutine, §4.H, §5), so compile must
// serialize access to cache rather than read/write the plain map directly.
type CELEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewCELEngine constructs the expr-lang-backed engine.
func NewCELEngine() *CELEngine {
	return &CELEngine{cache: make(map[string]*vm.Program)}
}

var celFunctions = []expr.Option{
	expr.Function("duration", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, err
		}
		return d.Seconds(), nil
	}),
	expr.Function("timestamp", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
		return t.Unix(), nil
	}),
	expr.Function("base64_encode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	}),
	expr.Function("base64_decode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}),
}

func (e *CELEngine) compile(expression string, env map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	prog, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	opts := append([]expr.Option{
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	}, celFunctions...)
	prog, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()
	return prog, nil
}

// Evaluate runs expr against the scope, exposing context/input/output as
// top-level map variables plus every context key at top level (matching the
// simple engine's dotted-path semantics for ergonomics).
func (e *CELEngine) Evaluate(expression string, scope Scope) (any, error) {
	env := scope.asMap()
	prog, err := e.compile(expression, env)
	if err != nil {
		return nil, err
	}
	return expr.Run(prog, env)
}

// Render implements template-mode substitution for CEL mode, identical in
// shape to the simple engine's but delegating expression evaluation to expr-lang.
func (e *CELEngine) Render(text string, scope Scope) (any, error) {
	if whole, ok := wholeSubstitution(text); ok {
		return e.Evaluate(whole, scope)
	}

	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		inner := strings.TrimSpace(rest[start+2 : end])
		val, err := e.Evaluate(inner, scope)
		if err != nil {
			return nil, fmt.Errorf("cel render: %w", err)
		}
		b.WriteString(stringify(val))
		rest = rest[end+2:]
	}
	return b.String(), nil
}
