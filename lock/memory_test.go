package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AcquireBlocksSecondHolder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	token1, err := m.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token1)

	_, err = m.Acquire(ctx, "exec-1", time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}

func TestMemory_ReleaseThenReacquire(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	token1, err := m.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, "exec-1", token1))

	token2, err := m.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, token1, token2)
}

func TestMemory_ExpiredLockCanBeReacquired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Acquire(ctx, "exec-1", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = m.Acquire(ctx, "exec-1", time.Minute)
	assert.NoError(t, err)
}

func TestMemory_ReleaseWithWrongTokenFails(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)

	err = m.Release(ctx, "exec-1", "wrong-token")
	assert.ErrorIs(t, err, ErrNotHeld)
}

func TestMemory_RenewExtendsTTL(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	token, err := m.Acquire(ctx, "exec-1", 30*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, m.Renew(ctx, "exec-1", token, time.Minute))
	time.Sleep(40 * time.Millisecond)

	_, err = m.Acquire(ctx, "exec-1", time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}
