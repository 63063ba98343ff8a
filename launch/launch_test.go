package launch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatagents/flatagents/expression"
	"github.com/flatagents/flatagents/machine"
	"github.com/flatagents/flatagents/persistence"
	"github.com/flatagents/flatagents/resultbackend"
)

func childConfig() *machine.Config {
	return &machine.Config{
		Name: "child",
		States: map[string]*machine.State{
			"start": {
				Name:        "start",
				Type:        machine.StateTypeInitial,
				Transitions: []machine.Transition{{To: "done"}},
			},
			"done": {
				Name:   "done",
				Type:   machine.StateTypeFinal,
				Output: map[string]any{"greeting": "{{item}}"},
			},
		},
	}
}

func newLauncher(t *testing.T) (*Launcher, machine.SnapshotStore, machine.ResultStore) {
	t.Helper()
	reg := NewRegistry()
	reg.Register("child", childConfig())

	snaps := persistence.NewMemory()
	results := resultbackend.NewMemory()

	inproc := &InProcess{
		Registry:  reg,
		Snapshots: snaps,
		Results:   results,
		Simple:    expression.NewSimpleEngine(),
	}
	launcher := &Launcher{Invoker: inproc, Snapshots: snaps, Results: results, ReadTimeout: 2 * time.Second}
	inproc.Launch = launcher.Launch
	return launcher, snaps, results
}

func TestLauncher_LaunchAndAwaitResult(t *testing.T) {
	launcher, _, _ := newLauncher(t)

	outcome, err := launcher.Launch(context.Background(), "", "child", map[string]any{"item": "hi"})
	require.NoError(t, err)
	require.Nil(t, outcome.Err)
	assert.Equal(t, "hi", outcome.Output["greeting"])
}

func TestLauncher_RecordsOutboxOnParentSnapshot(t *testing.T) {
	launcher, snaps, _ := newLauncher(t)

	parent := machine.NewExecutionId()
	require.NoError(t, snaps.Save(context.Background(), &machine.Snapshot{ExecutionId: parent, CurrentState: "start"}))

	_, err := launcher.Launch(context.Background(), parent, "child", map[string]any{"item": "hi"})
	require.NoError(t, err)

	snap, err := snaps.Load(context.Background(), parent)
	require.NoError(t, err)
	require.Len(t, snap.PendingLaunches, 1)
	assert.True(t, snap.PendingLaunches[0].Launched)
}

func TestLauncher_ReadTimeoutWhenChildNeverWrites(t *testing.T) {
	reg := NewRegistry()
	results := resultbackend.NewMemory()
	blockingInvoker := invokerFunc(func(ctx context.Context, childID machine.ExecutionId, target string, input map[string]any) error {
		return nil // never writes a result
	})
	_ = reg

	launcher := &Launcher{Invoker: blockingInvoker, Results: results, ReadTimeout: 50 * time.Millisecond}
	outcome, err := launcher.Launch(context.Background(), "", "child", nil)
	require.NoError(t, err)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, "RESULT_TIMEOUT", outcome.Err.Code)
}

type invokerFunc func(ctx context.Context, childID machine.ExecutionId, target string, input map[string]any) error

func (f invokerFunc) Launch(ctx context.Context, childID machine.ExecutionId, target string, input map[string]any) error {
	return f(ctx, childID, target, input)
}
