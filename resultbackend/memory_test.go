package resultbackend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_WriteThenRead(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, "k1", map[string]any{"a": 1.0}))
	v, err := m.Read(ctx, "k1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v["a"])
}

func TestMemory_SameValueRewriteIsNoop(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	val := map[string]any{"a": 1.0}

	require.NoError(t, m.Write(ctx, "k1", val))
	require.NoError(t, m.Write(ctx, "k1", val))
}

func TestMemory_DifferentValueRewriteErrors(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, "k1", map[string]any{"a": 1.0}))
	err := m.Write(ctx, "k1", map[string]any{"a": 2.0})
	assert.ErrorIs(t, err, ErrResultAlreadyWritten)
}

func TestMemory_NonBlockingReadMissIsNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Read(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_BlockingReadWakesOnWrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var got map[string]any
	var readErr error
	go func() {
		defer wg.Done()
		got, readErr = m.Read(ctx, "k2", 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Write(ctx, "k2", map[string]any{"ready": true}))

	wg.Wait()
	require.NoError(t, readErr)
	assert.Equal(t, true, got["ready"])
}

func TestMemory_BlockingReadTimesOut(t *testing.T) {
	m := NewMemory()
	_, err := m.Read(context.Background(), "never", 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotFound)
}
