package workpool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process WorkPool backed by a map and a mutex, used for
// single-process testing of the work-pool contract without a Redis
// dependency.
type Memory struct {
	mu    sync.Mutex
	items map[string]*Item
	order []string // insertion order, for deterministic Claim-order in tests
}

// NewMemory constructs an empty in-memory work pool.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]*Item)}
}

func (m *Memory) Push(ctx context.Context, payload map[string]any, maxRetries int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.items[id] = &Item{
		ID:         id,
		Payload:    payload,
		MaxRetries: maxRetries,
		PushedAt:   time.Now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) Claim(ctx context.Context, workerID string) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		it, ok := m.items[id]
		if !ok || it.Poisoned || it.ClaimedBy != "" {
			continue
		}
		it.ClaimedBy = workerID
		copyItem := *it
		return &copyItem, nil
	}
	return nil, ErrEmpty
}

func (m *Memory) Complete(ctx context.Context, id string, result map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *Memory) Fail(ctx context.Context, id string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Attempts++
	it.ClaimedBy = ""
	if it.Attempts >= it.MaxRetries {
		it.Poisoned = true
	}
	return nil
}

func (m *Memory) Size(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, it := range m.items {
		if !it.Poisoned && it.ClaimedBy == "" {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ReleaseByWorker(ctx context.Context, workerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, it := range m.items {
		if it.ClaimedBy == workerID {
			it.ClaimedBy = ""
			n++
		}
	}
	return n, nil
}
