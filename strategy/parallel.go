package strategy

import (
	"context"
	"sync"

	"github.com/flatagents/flatagents/machine"
)

// ParallelSample fires cfg.NSamples concurrent calls and returns every
// result in launch order (§4.F "run N concurrent calls; return a list of N
// AgentResults in launch order"). A call that returns a transport error
// rather than an AgentResult is represented as a server_error AgentResult so
// the returned slice always has exactly n elements positionally addressable
// by launch index.
type ParallelSample struct{}

func (ParallelSample) Execute(ctx context.Context, exec machine.Executor, input map[string]any, cfg *machine.ExecutionConfig) ([]*machine.AgentResult, error) {
	n := cfg.NSamples
	if n < 1 {
		n = 1
	}

	results := make([]*machine.AgentResult, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			r, err := exec.Execute(ctx, input)
			if err != nil {
				r = &machine.AgentResult{Error: &machine.AgentError{
					Code:    machine.ErrCodeServerError,
					Message: err.Error(),
				}}
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	return results, nil
}
