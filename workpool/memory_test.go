package workpool

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ConcurrentClaimIsAtomic(t *testing.T) {
	pool := NewMemory()
	const n = 50
	for i := 0; i < n; i++ {
		_, err := pool.Push(context.Background(), map[string]any{"i": i}, 3)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := make(map[string]bool)
	var wg sync.WaitGroup
	workers := 10
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			workerID := fmt.Sprintf("worker-%d", w)
			for {
				item, err := pool.Claim(context.Background(), workerID)
				if err == ErrEmpty {
					return
				}
				require.NoError(t, err)
				mu.Lock()
				dup := claimed[item.ID]
				claimed[item.ID] = true
				mu.Unlock()
				assert.False(t, dup, "item %s claimed twice", item.ID)
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, claimed, n)
}

func TestMemory_FailPoisonsAfterMaxRetries(t *testing.T) {
	pool := NewMemory()
	id, err := pool.Push(context.Background(), map[string]any{}, 2)
	require.NoError(t, err)

	_, err = pool.Claim(context.Background(), "w1")
	require.NoError(t, err)
	require.NoError(t, pool.Fail(context.Background(), id, nil))

	// Requeued: claimable again.
	item, err := pool.Claim(context.Background(), "w2")
	require.NoError(t, err)
	assert.Equal(t, id, item.ID)

	require.NoError(t, pool.Fail(context.Background(), id, nil))

	// Poisoned: no longer claimable.
	_, err = pool.Claim(context.Background(), "w3")
	assert.Equal(t, ErrEmpty, err)
}

func TestMemory_ReleaseByWorker(t *testing.T) {
	pool := NewMemory()
	id1, _ := pool.Push(context.Background(), map[string]any{}, 3)
	id2, _ := pool.Push(context.Background(), map[string]any{}, 3)

	_, err := pool.Claim(context.Background(), "lost-worker")
	require.NoError(t, err)
	_, err = pool.Claim(context.Background(), "lost-worker")
	require.NoError(t, err)

	n, err := pool.ReleaseByWorker(context.Background(), "lost-worker")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	size, err := pool.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	_ = id1
	_ = id2
}

func TestMemoryRegistry_MarkStale(t *testing.T) {
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Register(context.Background(), "w1"))
	require.NoError(t, reg.Register(context.Background(), "w2"))

	// Force w1's heartbeat into the past by using a zero threshold so
	// "older than now" catches everything registered before this instant.
	stale := reg.MarkStale(0)
	assert.ElementsMatch(t, []string{"w1", "w2"}, stale)

	workers, err := reg.List(context.Background(), Filter{Status: StatusLost})
	require.NoError(t, err)
	assert.Len(t, workers, 2)
}
