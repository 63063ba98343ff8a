// Package persistence implements snapshot storage for machine executions
// (§3 "Persistence", §4.G checkpointing). Save must be atomic with respect
// to concurrent readers: a reader must never observe a partially-written
// snapshot.
package persistence

import (
	"context"
	"errors"

	"github.com/flatagents/flatagents/machine"
)

// ErrNotFound is returned by Load when no snapshot exists for an execution.
var ErrNotFound = errors.New("persistence: execution not found")

// Backend is the contract a snapshot store must satisfy.
type Backend interface {
	Save(ctx context.Context, snap *machine.Snapshot) error
	Load(ctx context.Context, executionID machine.ExecutionId) (*machine.Snapshot, error)
	Delete(ctx context.Context, executionID machine.ExecutionId) error
	// List returns every execution ID with a persisted snapshot. The order
	// of the returned IDs is not defined.
	List(ctx context.Context) ([]machine.ExecutionId, error)
}
