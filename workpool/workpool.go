// Package workpool implements the optional distributed-deployment tier
// (§4.I): a pluggable atomic-claim job queue plus a worker registry with
// heartbeats and a stale-worker reaper. Neither is required for
// single-process execution — the interpreter never imports this package
// directly; it is wired by an application (cmd/flatagentsd) that wants to
// run the core across a worker fleet, grounded in itsneelabh-gomind's
// Redis-backed task-queue/registry pair.
package workpool

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Claim when no claimable item is available.
var ErrEmpty = errors.New("workpool: no claimable item")

// ErrNotFound is returned by Complete/Fail when id names no item in the
// pool.
var ErrNotFound = errors.New("workpool: item not found")

// Item is one unit of work pushed onto a WorkPool — conventionally an
// execution_id plus enough context (machine ref, input) for a worker to
// resume or start it, carried as an opaque payload so workpool itself stays
// agnostic to the machine package.
type Item struct {
	ID         string
	Payload    map[string]any
	Attempts   int
	MaxRetries int
	Poisoned   bool
	ClaimedBy  string
	PushedAt   time.Time
}

// WorkPool is the contract §4.I names: push, atomically claim, complete,
// fail-with-retry-counting, size, and release-by-worker for reaper use.
type WorkPool interface {
	// Push enqueues payload with maxRetries attempts allowed before the item
	// is marked Poisoned and excluded from future Claim calls. Returns the
	// new item's id.
	Push(ctx context.Context, payload map[string]any, maxRetries int) (string, error)

	// Claim atomically hands one unclaimed, non-poisoned item to workerID;
	// no two concurrent Claim calls may receive the same item. Returns
	// ErrEmpty if nothing is claimable.
	Claim(ctx context.Context, workerID string) (*Item, error)

	// Complete marks id done, removing it from the pool. result is not
	// stored.
	Complete(ctx context.Context, id string, result map[string]any) error

	// Fail records a failed attempt, incrementing Attempts; once Attempts
	// reaches MaxRetries the item is marked Poisoned and Claim will never
	// return it again.
	Fail(ctx context.Context, id string, cause error) error

	// Size reports the count of unclaimed, non-poisoned items.
	Size(ctx context.Context) (int, error)

	// ReleaseByWorker returns every item currently claimed by workerID back
	// to the claimable pool (used by the reaper for a worker presumed
	// lost), returning the count released.
	ReleaseByWorker(ctx context.Context, workerID string) (int, error)
}
