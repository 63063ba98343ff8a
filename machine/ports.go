package machine

import (
	"context"
	"time"
)

// SnapshotStore is the subset of persistence.Backend the interpreter needs
// to checkpoint and resume an execution. Declared locally so machine never
// imports the persistence package (persistence imports machine for Snapshot
// and ExecutionId; machine importing it back would cycle). Every
// persistence.Backend implementation satisfies this interface structurally.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, executionID ExecutionId) (*Snapshot, error)
	Delete(ctx context.Context, executionID ExecutionId) error
}

// ResultStore is the subset of resultbackend.Backend used to publish and
// await `/result` writes from launched children (§4.H); the launch package
// and cmd/flatagentsd hold one, the interpreter only carries the field.
type ResultStore interface {
	Write(ctx context.Context, key string, value map[string]any) error
	Read(ctx context.Context, key string, timeout time.Duration) (map[string]any, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// ExecLock is the subset of lock.Lock a host uses to serialize steps of one
// execution across concurrent workers (§4.H); the interpreter does not take
// the lock itself (cmd/flatagentsd's runner does).
type ExecLock interface {
	Acquire(ctx context.Context, executionID string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, executionID, token string) error
}

// StrategyFunc executes an agent call under a selected execution strategy
// (§4.F) and returns every AgentResult it produced, in launch order. default/
// retry/mdap_voting each return a single-element slice; parallel sampling
// returns one element per sample. The interpreter is handed a resolved
// StrategyFunc per agent state rather than importing the strategy package
// directly, keeping the strategy/retry/backoff machinery out of the core
// package.
type StrategyFunc func(ctx context.Context, exec Executor, input map[string]any, cfg *ExecutionConfig) ([]*AgentResult, error)

// LaunchFunc starts a child machine execution, used by machine-launch and
// fire-and-forget states (§4.H). It launches one target; multi-target
// "settled"/"any" handling is done by the interpreter's dispatch logic, which
// calls LaunchFunc once per target (in its own goroutine for fire-and-forget
// states). Implementations live in the launch package.
type LaunchFunc func(ctx context.Context, parent ExecutionId, targetMachine string, input map[string]any) (*LaunchOutcome, error)

// LaunchOutcome is what a completed (or dispatched) child launch reports
// back to the parent's dispatch logic.
type LaunchOutcome struct {
	ChildExecutionId ExecutionId
	Output           map[string]any
	Err              *Error
}
