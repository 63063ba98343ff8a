// Package launch implements the outbox-backed child-machine launcher (§4.H).
// A Launcher satisfies machine.LaunchFunc: every call records a LaunchIntent
// on the parent's snapshot before issuing the launch, so a crash between
// "decided to launch" and "child is running" is recoverable via ResumePending
// instead of silently dropping or double-starting the child.
package launch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flatagents/flatagents/machine"
)

// DefaultReadTimeout bounds a blocking machine-launch read when
// Launcher.ReadTimeout is zero (§4.H "Timeout"); a deadline on ctx can end
// the read sooner.
const DefaultReadTimeout = 30 * time.Second

// ResultKey is the conventional result-backend key a child execution's
// outcome is published under: the full `flatagents://{uuid}/result` URI
// (§6), scheme prefix included, used verbatim as the backend key.
func ResultKey(id machine.ExecutionId) string {
	return "flatagents://" + string(id) + "/result"
}

// Invoker starts a child machine execution. Launch must return once the
// child has been handed off to run (in-process goroutine, subprocess,
// queue, or webhook); it does not itself wait for completion — the
// Launcher awaits the child's result via the result backend.
type Invoker interface {
	Launch(ctx context.Context, childID machine.ExecutionId, target string, input map[string]any) error
}

// Launcher wires the outbox protocol (snapshot bookkeeping), an Invoker
// (how a child actually starts running), and a result backend (how the
// launcher learns the child finished) into one machine.LaunchFunc.
type Launcher struct {
	Invoker     Invoker
	Snapshots   machine.SnapshotStore // may be nil to run without outbox durability (e.g. tests)
	Results     machine.ResultStore   // may be nil for fire-and-forget-only configurations
	ReadTimeout time.Duration
}

// Launch implements machine.LaunchFunc.
func (l *Launcher) Launch(ctx context.Context, parent machine.ExecutionId, target string, input map[string]any) (*machine.LaunchOutcome, error) {
	childID := machine.NewExecutionId()
	intent := &machine.LaunchIntent{ExecutionId: childID, Machine: target, Input: input}

	if err := l.recordIntent(ctx, parent, intent); err != nil {
		return nil, &machine.Error{Type: machine.ErrorTypeLaunch, Code: "OUTBOX_SAVE_FAILED", Message: err.Error()}
	}

	if err := l.Invoker.Launch(ctx, childID, target, input); err != nil {
		return nil, &machine.Error{Type: machine.ErrorTypeLaunch, Code: "INVOKE_FAILED", Message: err.Error()}
	}

	if err := l.markLaunched(ctx, parent, childID); err != nil {
		return nil, &machine.Error{Type: machine.ErrorTypeLaunch, Code: "OUTBOX_SAVE_FAILED", Message: err.Error()}
	}

	return l.awaitResult(ctx, childID)
}

func (l *Launcher) awaitResult(ctx context.Context, childID machine.ExecutionId) (*machine.LaunchOutcome, error) {
	if l.Results == nil {
		return &machine.LaunchOutcome{ChildExecutionId: childID}, nil
	}

	timeout := l.ReadTimeout
	if timeout == 0 {
		timeout = DefaultReadTimeout
	}

	raw, err := l.Results.Read(ctx, ResultKey(childID), timeout)
	if err != nil {
		return &machine.LaunchOutcome{
			ChildExecutionId: childID,
			Err:              &machine.Error{Type: machine.ErrorTypeLaunch, Code: "RESULT_TIMEOUT", Message: err.Error()},
		}, nil
	}

	if errPayload, ok := raw["error"]; ok && errPayload != nil {
		if em, ok := errPayload.(map[string]any); ok {
			return &machine.LaunchOutcome{
				ChildExecutionId: childID,
				Err: &machine.Error{
					Type:    machine.ErrorType(fmt.Sprintf("%v", em["type"])),
					Code:    fmt.Sprintf("%v", em["code"]),
					Message: fmt.Sprintf("%v", em["message"]),
				},
			}, nil
		}
	}

	output, _ := raw["output"].(map[string]any)
	return &machine.LaunchOutcome{ChildExecutionId: childID, Output: output}, nil
}

// recordIntent and markLaunched are no-ops when either parent is the empty
// ExecutionId (top-level launches with no tracked parent, e.g. scheduled
// entrypoints) or Snapshots is nil (tests, or single-shot CLI runs with no
// persistence configured).
func (l *Launcher) recordIntent(ctx context.Context, parent machine.ExecutionId, intent *machine.LaunchIntent) error {
	if parent == "" || l.Snapshots == nil {
		return nil
	}
	snap, err := l.Snapshots.Load(ctx, parent)
	if err != nil {
		return err
	}
	snap.PendingLaunches = append(snap.PendingLaunches, intent)
	return l.Snapshots.Save(ctx, snap)
}

func (l *Launcher) markLaunched(ctx context.Context, parent machine.ExecutionId, childID machine.ExecutionId) error {
	if parent == "" || l.Snapshots == nil {
		return nil
	}
	snap, err := l.Snapshots.Load(ctx, parent)
	if err != nil {
		return err
	}
	for _, pl := range snap.PendingLaunches {
		if pl.ExecutionId == childID {
			pl.Launched = true
		}
	}
	return l.Snapshots.Save(ctx, snap)
}

// ErrNoPendingLaunches is returned by nothing today; kept for callers that
// want to distinguish "nothing to resume" from a load error.
var ErrNoPendingLaunches = errors.New("launch: no pending launches on snapshot")

// ResumePending re-issues every not-yet-launched LaunchIntent recorded on a
// resumed parent snapshot (§4.H "On resume"). It must run before the
// interpreter resumes stepping so a blocking machine-launch state re-enters
// awaitResult against a child that is actually running again.
func (l *Launcher) ResumePending(ctx context.Context, snap *machine.Snapshot) error {
	for _, intent := range snap.PendingLaunches {
		if intent.Launched {
			continue
		}
		if err := l.Invoker.Launch(ctx, intent.ExecutionId, intent.Machine, intent.Input); err != nil {
			return fmt.Errorf("relaunching %s (%s): %w", intent.ExecutionId, intent.Machine, err)
		}
		intent.Launched = true
	}
	if l.Snapshots != nil {
		return l.Snapshots.Save(ctx, snap)
	}
	return nil
}
