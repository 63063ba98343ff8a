package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	token   string
	expires time.Time
}

// Memory is an in-process Lock backed by a mutex-guarded map, sufficient
// for single-process deployments and tests.
type Memory struct {
	mu      sync.Mutex
	holders map[string]entry
}

func NewMemory() *Memory {
	return &Memory{holders: make(map[string]entry)}
}

func (m *Memory) Acquire(ctx context.Context, executionID string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.holders[executionID]; ok && time.Now().Before(e.expires) {
		return "", ErrAlreadyLocked
	}

	token := uuid.New().String()
	m.holders[executionID] = entry{token: token, expires: time.Now().Add(ttl)}
	return token, nil
}

func (m *Memory) Renew(ctx context.Context, executionID, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.holders[executionID]
	if !ok || e.token != token || time.Now().After(e.expires) {
		return ErrNotHeld
	}
	e.expires = time.Now().Add(ttl)
	m.holders[executionID] = e
	return nil
}

func (m *Memory) Release(ctx context.Context, executionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.holders[executionID]
	if !ok || e.token != token {
		return ErrNotHeld
	}
	delete(m.holders, executionID)
	return nil
}
