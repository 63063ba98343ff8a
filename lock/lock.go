// Package lock implements the per-execution mutual-exclusion lock that
// guarantees at most one interpreter loop advances a given execution at a
// time (§3 "Execution Lock", §4.H), so a crashed worker's lock expires and a
// resuming worker can safely take over.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by Release/Renew when the caller's token does not
// hold the lock (already expired or already released).
var ErrNotHeld = errors.New("lock: not held")

// ErrAlreadyLocked is returned by Acquire when another owner holds the lock.
var ErrAlreadyLocked = errors.New("lock: already locked")

// Lock is the contract an execution-lock implementation must satisfy.
type Lock interface {
	// Acquire takes the lock for executionID, valid for ttl, returning an
	// opaque token identifying this acquisition. Returns ErrAlreadyLocked
	// if another live owner holds it.
	Acquire(ctx context.Context, executionID string, ttl time.Duration) (token string, err error)

	// Renew extends an already-held lock's TTL, used by a long-running
	// agent call to keep its lock alive past the original ttl.
	Renew(ctx context.Context, executionID, token string, ttl time.Duration) error

	// Release gives up the lock, identified by the token returned from
	// Acquire, so the next Acquire call for the same executionID succeeds
	// immediately instead of waiting out the TTL.
	Release(ctx context.Context, executionID, token string) error
}
