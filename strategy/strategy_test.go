package strategy

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatagents/flatagents/machine"
)

// testExecutor adapts a plain function to machine.Executor for these tests.
type testExecutor func(ctx context.Context, input map[string]any) (*machine.AgentResult, error)

func (f testExecutor) Execute(ctx context.Context, input map[string]any) (*machine.AgentResult, error) {
	return f(ctx, input)
}

func succeed(output map[string]any) testExecutor {
	return func(ctx context.Context, input map[string]any) (*machine.AgentResult, error) {
		return &machine.AgentResult{Output: output}, nil
	}
}

func failNTimes(n int, code machine.AgentErrorCode, retryable bool) testExecutor {
	calls := 0
	return func(ctx context.Context, input map[string]any) (*machine.AgentResult, error) {
		calls++
		if calls <= n {
			return &machine.AgentResult{Error: &machine.AgentError{Code: code, Retryable: retryable}}, nil
		}
		return &machine.AgentResult{Output: map[string]any{"ok": true}}, nil
	}
}

func TestDefault_SingleCall(t *testing.T) {
	exec := succeed(map[string]any{"x": 1})
	results, err := Default{}.Execute(context.Background(), exec, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Output["x"])
}

func TestSelect_DefaultsWhenNilOrUnknown(t *testing.T) {
	assert.IsType(t, Default{}, Select(nil))
	assert.IsType(t, Default{}, Select(&machine.ExecutionConfig{Type: "bogus"}))
	assert.IsType(t, Retry{}, Select(&machine.ExecutionConfig{Type: "retry"}))
	assert.IsType(t, ParallelSample{}, Select(&machine.ExecutionConfig{Type: "parallel"}))
	assert.IsType(t, MDAPVoting{}, Select(&machine.ExecutionConfig{Type: "mdap_voting"}))
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	exec := failNTimes(2, machine.ErrCodeRateLimit, true)
	cfg := &machine.ExecutionConfig{Backoffs: []float64{0, 0, 0}}
	results, err := Retry{}.Execute(context.Background(), exec, nil, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Output["ok"].(bool))
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	exec := testExecutor(func(ctx context.Context, input map[string]any) (*machine.AgentResult, error) {
		return &machine.AgentResult{Error: &machine.AgentError{Code: machine.ErrCodeAuthError, Retryable: false}}, nil
	})
	cfg := &machine.ExecutionConfig{Backoffs: []float64{0, 0}}
	results, err := Retry{}.Execute(context.Background(), exec, nil, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, machine.ErrCodeAuthError, results[0].Error.Code)
}

// TestParallelSample_ReturnsAllInLaunchOrder covers §4.F's actual contract:
// n_samples concurrent calls, every result returned, positionally addressable
// by launch index rather than a first-success race.
func TestParallelSample_ReturnsAllInLaunchOrder(t *testing.T) {
	exec := testExecutor(func(ctx context.Context, input map[string]any) (*machine.AgentResult, error) {
		n, _ := input["n"].(int)
		return &machine.AgentResult{Output: map[string]any{"n": n}}, nil
	})
	const n = 5
	cfg := &machine.ExecutionConfig{NSamples: n}
	results, err := ParallelSample{}.Execute(context.Background(), exec, map[string]any{"n": 3}, cfg)
	require.NoError(t, err)
	require.Len(t, results, n)
	for i, r := range results {
		require.NotNil(t, r, "result %d", i)
		assert.Equal(t, 3, r.Output["n"])
	}
}

// TestParallelSample_SurfacesIndividualFailures covers the sampling use case
// the old first-success race made unimplementable: a caller inspecting all N
// outputs, including any individual failures, rather than only the winner.
func TestParallelSample_SurfacesIndividualFailures(t *testing.T) {
	var calls int32
	exec := testExecutor(func(ctx context.Context, input map[string]any) (*machine.AgentResult, error) {
		i := atomic.AddInt32(&calls, 1)
		if i%2 == 0 {
			return &machine.AgentResult{Error: &machine.AgentError{Code: machine.ErrCodeServerError, Retryable: true}}, nil
		}
		return &machine.AgentResult{Output: map[string]any{"ok": true}}, nil
	})
	cfg := &machine.ExecutionConfig{NSamples: 4}
	results, err := ParallelSample{}.Execute(context.Background(), exec, nil, cfg)
	require.NoError(t, err)
	require.Len(t, results, 4)

	var succeeded, failed int
	for _, r := range results {
		if r.Error != nil {
			failed++
		} else {
			succeeded++
		}
	}
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 2, failed)
}

func TestMDAPVoting_MajorityWins(t *testing.T) {
	calls := 0
	var mu = make(chan struct{}, 1)
	mu <- struct{}{}
	exec := testExecutor(func(ctx context.Context, input map[string]any) (*machine.AgentResult, error) {
		<-mu
		calls++
		n := calls
		mu <- struct{}{}
		if n <= 3 {
			return &machine.AgentResult{Output: map[string]any{"answer": "A"}}, nil
		}
		return &machine.AgentResult{Output: map[string]any{"answer": "B"}}, nil
	})
	cfg := &machine.ExecutionConfig{MaxCandidates: 5, KMargin: 1}
	results, err := MDAPVoting{}.Execute(context.Background(), exec, nil, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Output["answer"])
}
