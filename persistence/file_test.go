package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatagents/flatagents/machine"
)

func TestFile_SaveLoadDeleteList(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(dir)
	ctx := context.Background()

	snap := &machine.Snapshot{
		ExecutionId:  "exec/with-slash",
		MachineName:  "m",
		CurrentState: "s1",
		Context:      map[string]any{"k": "v"},
	}
	require.NoError(t, f.Save(ctx, snap))

	loaded, err := f.Load(ctx, "exec/with-slash")
	require.NoError(t, err)
	assert.Equal(t, "s1", loaded.CurrentState)
	assert.Equal(t, "v", loaded.Context["k"])

	ids, err := f.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	require.NoError(t, f.Delete(ctx, "exec/with-slash"))
	_, err = f.Load(ctx, "exec/with-slash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFile_LoadMissingReturnsNotFound(t *testing.T) {
	f := NewFile(t.TempDir())
	_, err := f.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
