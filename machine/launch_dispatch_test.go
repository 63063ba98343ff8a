package machine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatagents/flatagents/expression"
)

// TestInterpreter_ParallelSettled reproduces spec §8 seed test 3: a
// machine-launch state naming three distinct children, each completing
// after a different sleep. The merged output must be keyed by machine name
// regardless of arrival order, and total wall-clock must stay close to the
// slowest sibling rather than the sum of all three (proving they ran
// concurrently, not sequentially).
func TestInterpreter_ParallelSettled(t *testing.T) {
	sleeps := map[string]time.Duration{
		"a": 10 * time.Millisecond,
		"b": 20 * time.Millisecond,
		"c": 5 * time.Millisecond,
	}
	values := map[string]string{"a": "A", "b": "B", "c": "C"}

	launchFn := LaunchFunc(func(ctx context.Context, parent ExecutionId, target string, input map[string]any) (*LaunchOutcome, error) {
		select {
		case <-time.After(sleeps[target]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &LaunchOutcome{Output: map[string]any{"v": values[target]}}, nil
	})

	cfg := &Config{
		Name: "fanout",
		States: map[string]*State{
			"start": {
				Name:        "start",
				Type:        StateTypeInitial,
				Transitions: []Transition{{To: "fan"}},
			},
			"fan": {
				Name:            "fan",
				Machine:         StringOrList{"a", "b", "c"},
				OutputToContext: map[string]string{"results": "output"},
				Transitions:     []Transition{{To: "done"}},
			},
			"done": {
				Name:   "done",
				Type:   StateTypeFinal,
				Output: map[string]any{"results": "{{results}}"},
			},
		},
	}

	in := &Interpreter{Config: cfg, Launch: launchFn, Simple: expression.NewSimpleEngine()}

	start := time.Now()
	snap, err := in.Run(context.Background(), "exec-fanout", nil)
	elapsed := time.Since(start)
	require.NoError(t, err)

	results, ok := snap.Output["results"].(map[string]any)
	require.True(t, ok)
	aOut, _ := results["a"].(map[string]any)
	bOut, _ := results["b"].(map[string]any)
	cOut, _ := results["c"].(map[string]any)
	assert.Equal(t, "A", aOut["v"])
	assert.Equal(t, "B", bOut["v"])
	assert.Equal(t, "C", cOut["v"])
	assert.Less(t, elapsed, 25*time.Millisecond+15*time.Millisecond)
}

// TestInterpreter_ForeachWithKey reproduces spec §8 seed test 4.
func TestInterpreter_ForeachWithKey(t *testing.T) {
	cfg := &Config{
		Name:        "foreach",
		ContextInit: map[string]string{"items": `[{"id": "x", "n": 1}, {"id": "y", "n": 2}]`},
		States: map[string]*State{
			"start": {
				Name:        "start",
				Type:        StateTypeInitial,
				Transitions: []Transition{{To: "fan"}},
			},
			"fan": {
				Name:    "fan",
				Machine: StringOrList{"doubler"},
				Foreach: "items",
				As:      "item",
				Key:     "item.id",
				Input:   map[string]any{"n": "{{item.n}}"},
				OutputToContext: map[string]string{
					"doubled": "output",
				},
				Transitions: []Transition{{To: "done"}},
			},
			"done": {
				Name:   "done",
				Type:   StateTypeFinal,
				Output: map[string]any{"doubled": "{{doubled}}"},
			},
		},
	}

	launchFn := LaunchFunc(func(ctx context.Context, parent ExecutionId, target string, input map[string]any) (*LaunchOutcome, error) {
		// Integer literals in the simple engine evaluate to Go int.
		n, _ := input["n"].(int)
		return &LaunchOutcome{Output: map[string]any{"n": n * 2}}, nil
	})

	in := &Interpreter{Config: cfg, Launch: launchFn, Simple: expression.NewSimpleEngine()}
	snap, err := in.Run(context.Background(), "exec-foreach", nil)
	require.NoError(t, err)

	doubled, ok := snap.Output["doubled"].(map[string]any)
	require.True(t, ok)
	xOut, _ := doubled["x"].(map[string]any)
	yOut, _ := doubled["y"].(map[string]any)
	assert.EqualValues(t, 2, xOut["n"])
	assert.EqualValues(t, 4, yOut["n"])
}

// TestInterpreter_ForeachWithoutKeyReturnsOrderedList covers the foreach
// fan-out with no `key`: the merged output must be a bare list matching
// input order, not a map (and not unwrapped to a lone scalar), even though
// this run has more than one element.
func TestInterpreter_ForeachWithoutKeyReturnsOrderedList(t *testing.T) {
	cfg := &Config{
		Name:        "foreachnokey",
		ContextInit: map[string]string{"items": `[1, 2, 3]`},
		States: map[string]*State{
			"start": {
				Name:        "start",
				Type:        StateTypeInitial,
				Transitions: []Transition{{To: "fan"}},
			},
			"fan": {
				Name:            "fan",
				Machine:         StringOrList{"doubler"},
				Foreach:         "items",
				As:              "item",
				Input:           map[string]any{"n": "{{item}}"},
				OutputToContext: map[string]string{"doubled": "output"},
				Transitions:     []Transition{{To: "done"}},
			},
			"done": {
				Name:   "done",
				Type:   StateTypeFinal,
				Output: map[string]any{"doubled": "{{doubled}}"},
			},
		},
	}

	launchFn := LaunchFunc(func(ctx context.Context, parent ExecutionId, target string, input map[string]any) (*LaunchOutcome, error) {
		// Integer literals in the simple engine evaluate to Go int.
		n, _ := input["n"].(int)
		return &LaunchOutcome{Output: map[string]any{"n": n * 2}}, nil
	})

	in := &Interpreter{Config: cfg, Launch: launchFn, Simple: expression.NewSimpleEngine()}
	snap, err := in.Run(context.Background(), "exec-foreach-nokey", nil)
	require.NoError(t, err)

	doubled, ok := snap.Output["doubled"].([]any)
	require.True(t, ok, "expected a bare ordered list, got %T", snap.Output["doubled"])
	require.Len(t, doubled, 3)
	for i, want := range []float64{2, 4, 6} {
		entry, ok := doubled[i].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, want, entry["n"])
	}
}

// TestInterpreter_ForeachEmptyIsEmptyResult covers §8 boundary behavior:
// empty foreach produces an empty result, not an error.
func TestInterpreter_ForeachEmptyIsEmptyResult(t *testing.T) {
	var calls int32

	cfg := &Config{
		Name:        "emptyforeach",
		ContextInit: map[string]string{"items": `[]`},
		States: map[string]*State{
			"start": {
				Name:        "start",
				Type:        StateTypeInitial,
				Transitions: []Transition{{To: "fan"}},
			},
			"fan": {
				Name:            "fan",
				Machine:         StringOrList{"worker"},
				Foreach:         "items",
				As:              "item",
				Key:             "item.id",
				OutputToContext: map[string]string{"out": "output"},
				Transitions:     []Transition{{To: "done"}},
			},
			"done": {
				Name:   "done",
				Type:   StateTypeFinal,
				Output: map[string]any{"out": "{{out}}"},
			},
		},
	}

	launchFn := LaunchFunc(func(ctx context.Context, parent ExecutionId, target string, input map[string]any) (*LaunchOutcome, error) {
		atomic.AddInt32(&calls, 1)
		return &LaunchOutcome{}, nil
	})

	in := &Interpreter{Config: cfg, Launch: launchFn, Simple: expression.NewSimpleEngine()}
	snap, err := in.Run(context.Background(), "exec-empty", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	out, ok := snap.Output["out"].(map[string]any)
	require.True(t, ok)
	assert.Empty(t, out)
}
