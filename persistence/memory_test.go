package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatagents/flatagents/machine"
)

func TestMemory_SaveLoadDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	snap := &machine.Snapshot{
		ExecutionId:  "exec-1",
		MachineName:  "order_flow",
		CurrentState: "collect",
		Context:      map[string]any{"count": 1.0},
		Step:         2,
		CreatedAt:    time.Now(),
	}

	require.NoError(t, m.Save(ctx, snap))

	loaded, err := m.Load(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "collect", loaded.CurrentState)
	assert.Equal(t, 1.0, loaded.Context["count"])

	loaded.Context["count"] = 999.0
	reloaded, err := m.Load(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, reloaded.Context["count"], "mutating a loaded snapshot must not corrupt the stored copy")

	require.NoError(t, m.Delete(ctx, "exec-1"))
	_, err = m.Load(ctx, "exec-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_List(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Save(ctx, &machine.Snapshot{ExecutionId: "a"}))
	require.NoError(t, m.Save(ctx, &machine.Snapshot{ExecutionId: "b"}))

	ids, err := m.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []machine.ExecutionId{"a", "b"}, ids)
}
