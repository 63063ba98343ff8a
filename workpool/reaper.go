package workpool

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reaper periodically marks stale workers lost and releases their claimed
// work-pool items, as a recurring maintenance job scheduled via
// robfig/cron/v3 rather than a bespoke ticker loop.
type Reaper struct {
	Pool           WorkPool
	StaleThreshold time.Duration
	Logger         zerolog.Logger
	cron           *cron.Cron
	markStale      func(context.Context, time.Duration) ([]string, error)
}

// NewReaper wires a Reaper against a WorkPool and a stale-worker detection
// function, letting callers supply either MemoryRegistry.MarkStale
// (wrapped to match the context-taking signature) or
// RedisRegistry.MarkStale directly.
func NewReaper(pool WorkPool, staleThreshold time.Duration, logger zerolog.Logger, markStale func(context.Context, time.Duration) ([]string, error)) *Reaper {
	return &Reaper{Pool: pool, StaleThreshold: staleThreshold, Logger: logger, markStale: markStale}
}

// Start schedules the reaper tick on spec (standard 5-field cron syntax,
// e.g. "*/30 * * * *") and begins running it in the background. Stop must
// be called to release the scheduler goroutine.
func (r *Reaper) Start(ctx context.Context, spec string) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(spec, func() { r.tick(ctx) })
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight tick to finish.
func (r *Reaper) Stop() {
	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
	}
}

func (r *Reaper) tick(ctx context.Context) {
	stale, err := r.markStale(ctx, r.StaleThreshold)
	if err != nil {
		r.Logger.Error().Err(err).Msg("workpool reaper: mark-stale failed")
		return
	}
	for _, workerID := range stale {
		n, err := r.Pool.ReleaseByWorker(ctx, workerID)
		if err != nil {
			r.Logger.Error().Err(err).Str("worker_id", workerID).Msg("workpool reaper: release failed")
			continue
		}
		r.Logger.Info().Str("worker_id", workerID).Int("released", n).Msg("workpool reaper: released stale worker's claims")
	}
}

// MemoryMarkStale adapts MemoryRegistry.MarkStale to the context-taking
// signature NewReaper expects, for single-process deployments.
func MemoryMarkStale(reg *MemoryRegistry) func(context.Context, time.Duration) ([]string, error) {
	return func(ctx context.Context, staleThreshold time.Duration) ([]string, error) {
		return reg.MarkStale(staleThreshold), nil
	}
}
