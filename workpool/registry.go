package workpool

import (
	"context"
	"sync"
	"time"
)

// WorkerStatus is one of the statuses §4.I names.
type WorkerStatus string

const (
	StatusActive      WorkerStatus = "active"
	StatusTerminating WorkerStatus = "terminating"
	StatusTerminated  WorkerStatus = "terminated"
	StatusLost        WorkerStatus = "lost"
)

// Worker is one registered fleet member.
type Worker struct {
	ID            string
	Status        WorkerStatus
	RegisteredAt  time.Time
	LastHeartbeat time.Time
}

// DefaultStaleMultiplier is applied to a configured heartbeat interval to
// get the stale threshold (§4.I "Stale threshold defaults to
// 2×heartbeat_interval").
const DefaultStaleMultiplier = 2

// Filter narrows RegistrationBackend.List to workers matching Status, when
// non-empty.
type Filter struct {
	Status WorkerStatus
}

// RegistrationBackend is the contract a worker registry must satisfy
// (§4.I).
type RegistrationBackend interface {
	Register(ctx context.Context, workerID string) error
	Heartbeat(ctx context.Context, workerID string) error
	UpdateStatus(ctx context.Context, workerID string, status WorkerStatus) error
	List(ctx context.Context, filter Filter) ([]*Worker, error)
}

// MemoryRegistry is an in-process RegistrationBackend for single-process
// deployments and tests.
type MemoryRegistry struct {
	mu      sync.Mutex
	workers map[string]*Worker
}

// NewMemoryRegistry constructs an empty in-memory worker registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{workers: make(map[string]*Worker)}
}

func (m *MemoryRegistry) Register(ctx context.Context, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.workers[workerID] = &Worker{ID: workerID, Status: StatusActive, RegisteredAt: now, LastHeartbeat: now}
	return nil
}

func (m *MemoryRegistry) Heartbeat(ctx context.Context, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok {
		return ErrNotFound
	}
	w.LastHeartbeat = time.Now()
	return nil
}

func (m *MemoryRegistry) UpdateStatus(ctx context.Context, workerID string, status WorkerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok {
		return ErrNotFound
	}
	w.Status = status
	return nil
}

func (m *MemoryRegistry) List(ctx context.Context, filter Filter) ([]*Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

// MarkStale flips every worker whose last heartbeat is older than
// staleThreshold from active/terminating to lost, returning the ids marked.
// Called by Reaper on its cron tick (§4.I "reaper semantics").
func (m *MemoryRegistry) MarkStale(staleThreshold time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-staleThreshold)
	var stale []string
	for _, w := range m.workers {
		if w.Status == StatusTerminated || w.Status == StatusLost {
			continue
		}
		if w.LastHeartbeat.Before(cutoff) {
			w.Status = StatusLost
			stale = append(stale, w.ID)
		}
	}
	return stale
}
