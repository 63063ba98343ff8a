package strategy

import (
	"context"
	"math/rand"
	"time"

	"github.com/flatagents/flatagents/machine"
)

// Retry re-invokes the executor on agent-level failure, backing off between
// attempts per cfg.Backoffs — a list of per-attempt base delays in seconds
// (§4.F). It makes at most len(cfg.Backoffs)+1 attempts, waiting Backoffs[i]
// after the (i+1)-th failure, so an empty schedule is a single call. A
// provider-reported RateLimit.RetryAfter overrides the schedule for that one
// wait.
type Retry struct{}

func (Retry) Execute(ctx context.Context, exec machine.Executor, input map[string]any, cfg *machine.ExecutionConfig) ([]*machine.AgentResult, error) {
	attempts := len(cfg.Backoffs) + 1
	if attempts < 1 {
		attempts = 1
	}

	var last *machine.AgentResult
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt-1)
			if last != nil && last.RateLimit != nil && last.RateLimit.RetryAfter > 0 {
				delay = time.Duration(last.RateLimit.RetryAfter * float64(time.Second))
			}
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return wrapRetryResult(last), ctx.Err()
				}
			}
		}

		result, err := exec.Execute(ctx, input)
		if err != nil {
			lastErr = err
			last = result
			continue
		}
		last, lastErr = result, nil
		if isSuccess(result) {
			return wrapRetryResult(result), nil
		}
		if result.Error != nil && !result.Error.Retryable {
			return wrapRetryResult(result), nil
		}
	}

	return wrapRetryResult(last), lastErr
}

// wrapRetryResult wraps the single surviving AgentResult in the one-element
// slice StrategyFunc callers expect; last may be nil when every attempt
// returned a transport error with no AgentResult.
func wrapRetryResult(last *machine.AgentResult) []*machine.AgentResult {
	if last == nil {
		return nil
	}
	return []*machine.AgentResult{last}
}

// backoffDelay resolves the delay for the given zero-based retry index,
// applying cfg.Jitter as a fractional (0..1) addition on top of the
// configured per-attempt base.
func backoffDelay(cfg *machine.ExecutionConfig, idx int) time.Duration {
	if len(cfg.Backoffs) == 0 {
		return 0
	}
	if idx >= len(cfg.Backoffs) {
		idx = len(cfg.Backoffs) - 1
	}
	base := cfg.Backoffs[idx]
	delay := time.Duration(base * float64(time.Second))
	if cfg.Jitter > 0 && delay > 0 {
		jitterRange := float64(delay) * cfg.Jitter
		delay += time.Duration(rand.Float64() * jitterRange)
	}
	return delay
}
