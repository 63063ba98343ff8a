package persistence

import (
	"context"
	"sync"

	"github.com/flatagents/flatagents/machine"
)

// Memory is an in-process Backend. Save stores a deep copy via JSON
// round-trip (matching machine.Context.Clone's isolation guarantee) so a
// caller mutating its snapshot after Save cannot corrupt the stored copy;
// Load hands out a fresh copy of the Context the same way.
type Memory struct {
	mu    sync.RWMutex
	snaps map[machine.ExecutionId]*machine.Snapshot
}

func NewMemory() *Memory {
	return &Memory{snaps: make(map[machine.ExecutionId]*machine.Snapshot)}
}

func (m *Memory) Save(ctx context.Context, snap *machine.Snapshot) error {
	cp := *snap
	ctxCopy, err := machine.Context(snap.Context).Clone()
	if err != nil {
		return err
	}
	cp.Context = ctxCopy.ToMap()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.ExecutionId] = &cp
	return nil
}

func (m *Memory) Load(ctx context.Context, executionID machine.ExecutionId) (*machine.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *snap
	ctxCopy, err := machine.Context(snap.Context).Clone()
	if err != nil {
		return nil, err
	}
	cp.Context = ctxCopy.ToMap()
	return &cp, nil
}

func (m *Memory) Delete(ctx context.Context, executionID machine.ExecutionId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, executionID)
	return nil
}

func (m *Memory) List(ctx context.Context) ([]machine.ExecutionId, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]machine.ExecutionId, 0, len(m.snaps))
	for id := range m.snaps {
		ids = append(ids, id)
	}
	return ids, nil
}
