// Package resultbackend implements the blocking/non-blocking result store
// used by fire-and-forget and machine-launch states to publish and await a
// child execution's `/result` write (§3 "Result Backend", §4.H). Writers and
// readers rendezvous on a URI-shaped key; a write establishes happens-before
// over any read that observes it, behind a small interface with swappable
// in-memory and Redis implementations.
package resultbackend

import (
	"context"
	"errors"
	"time"
)

// ErrResultAlreadyWritten is returned by Write when a different value has
// already been published at the same key (§3 Open Question resolution,
// recorded in SPEC_FULL.md: same-value rewrite is a no-op, different-value
// rewrite is an error).
var ErrResultAlreadyWritten = errors.New("resultbackend: result already written with a different value")

// ErrNotFound is returned by Read when no value exists at the key: at once
// for a non-blocking read, or when the timeout elapses for a blocking one.
var ErrNotFound = errors.New("resultbackend: no result at key")

// Backend is the contract a result store must satisfy.
type Backend interface {
	// Write publishes a result at key. Calling Write twice with a
	// deep-equal value is a no-op; calling it twice with different values
	// returns ErrResultAlreadyWritten.
	Write(ctx context.Context, key string, value map[string]any) error

	// Read returns the value at key, blocking up to timeout for it to
	// appear if it is not yet written. timeout <= 0 means return
	// immediately (non-blocking).
	Read(ctx context.Context, key string, timeout time.Duration) (map[string]any, error)

	// Exists reports whether a value has been written at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the value at key, used for result-key cleanup once a
	// parent machine has consumed it.
	Delete(ctx context.Context, key string) error
}
