package strategy

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flatagents/flatagents/machine"
)

// MDAPVoting fires cfg.MaxCandidates concurrent calls, groups the successful
// ones by deep-equal output, and returns the first-seen result of the largest
// group — a majority-of-samples voting strategy for agents whose outputs are
// expected to converge on repeated sampling (§4.F). It always waits for all
// candidates; sampling does not stop early once a group leads. Ties go to the
// group seen first. When the winner leads the runner-up by fewer than
// cfg.KMargin votes, it is still returned, with voting_margin_met=false in
// its ProviderData.
type MDAPVoting struct{}

func (MDAPVoting) Execute(ctx context.Context, exec machine.Executor, input map[string]any, cfg *machine.ExecutionConfig) ([]*machine.AgentResult, error) {
	n := cfg.MaxCandidates
	if n < 1 {
		n = 1
	}
	margin := cfg.KMargin
	if margin < 1 {
		margin = 1
	}

	type sample struct {
		key    string
		result *machine.AgentResult
	}
	samples := make([]sample, 0, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			r, err := exec.Execute(ctx, input)
			if err != nil || !isSuccess(r) {
				return
			}
			key := votingKey(r)
			mu.Lock()
			samples = append(samples, sample{key: key, result: r})
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(samples) == 0 {
		return []*machine.AgentResult{{Error: &machine.AgentError{
			Code:    machine.ErrCodeServerError,
			Message: "mdap_voting: all candidates failed",
		}}}, nil
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	first := make(map[string]*machine.AgentResult)
	for _, s := range samples {
		if _, ok := counts[s.key]; !ok {
			order = append(order, s.key)
			first[s.key] = s.result
		}
		counts[s.key]++
	}

	bestKey := order[0]
	best, second := 0, 0
	for _, k := range order {
		c := counts[k]
		if c > best {
			second = best
			best = c
			bestKey = k
		} else if c > second {
			second = c
		}
	}
	winner := first[bestKey]
	if best-second < margin {
		winner.ProviderData = mergeProviderData(winner.ProviderData, map[string]any{"voting_margin_met": false})
	}

	return []*machine.AgentResult{winner}, nil
}

func mergeProviderData(existing map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(extra))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// votingKey canonicalizes an AgentResult's Output for equality grouping via a
// stable JSON encoding (map keys sorted by encoding/json by default).
func votingKey(r *machine.AgentResult) string {
	raw, err := json.Marshal(r.Output)
	if err != nil {
		return r.Content
	}
	return string(raw)
}
