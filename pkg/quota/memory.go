package quota

import (
	"context"
	"sync"
)

// memoryUsage tracks one user's cumulative token consumption.
type memoryUsage struct {
	input  int
	output int
}

// MemoryLimiter is an in-process quota limiter backed by a guarded map,
// used for single-instance deployments and tests. State does not survive
// process restart.
type MemoryLimiter struct {
	name  string
	limit int

	mu     sync.Mutex
	usage  map[string]*memoryUsage
}

// NewMemoryLimiter constructs a MemoryLimiter with a fixed total-token
// budget per user (input + output combined).
func NewMemoryLimiter(name string, limit int) *MemoryLimiter {
	return &MemoryLimiter{
		name:  name,
		limit: limit,
		usage: make(map[string]*memoryUsage),
	}
}

// Name implements Limiter.
func (m *MemoryLimiter) Name() string { return m.name }

// EnsureAvailable implements Limiter.
func (m *MemoryLimiter) EnsureAvailable(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	avail := m.availableLocked(userID)
	if avail <= 0 {
		return &QuotaExceeded{LimiterName: m.name, Available: avail, Requested: 1}
	}
	return nil
}

// Consume implements Limiter.
func (m *MemoryLimiter) Consume(_ context.Context, userID string, inputTokens, outputTokens int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usage[userID]
	if !ok {
		u = &memoryUsage{}
		m.usage[userID] = u
	}
	u.input += inputTokens
	u.output += outputTokens
	return nil
}

// Available implements Limiter.
func (m *MemoryLimiter) Available(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked(userID), nil
}

func (m *MemoryLimiter) availableLocked(userID string) int {
	u, ok := m.usage[userID]
	if !ok {
		return m.limit
	}
	remaining := m.limit - (u.input + u.output)
	if remaining < 0 {
		return 0
	}
	return remaining
}
