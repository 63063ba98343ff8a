package strategy

import (
	"context"

	"github.com/flatagents/flatagents/machine"
)

// Default performs exactly one call, no retry, no fan-out (§4.F).
type Default struct{}

func (Default) Execute(ctx context.Context, exec machine.Executor, input map[string]any, _ *machine.ExecutionConfig) ([]*machine.AgentResult, error) {
	r, err := exec.Execute(ctx, input)
	if err != nil {
		return nil, err
	}
	return []*machine.AgentResult{r}, nil
}
