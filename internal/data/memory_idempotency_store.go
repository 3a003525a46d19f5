package data

import (
	"context"
	"sync"
	"time"

	"github.com/target/crew-api/internal/core"
)

type idempotencyBinding struct {
	jobID     string
	expiresAt time.Time
}

// MemoryIdempotencyStore is the single-process core.IdempotencyStore used when Redis is disabled.
type MemoryIdempotencyStore struct {
	mu       sync.Mutex
	bindings map[string]idempotencyBinding
	time     TimeProvider
}

var _ core.IdempotencyStore = (*MemoryIdempotencyStore)(nil)

// NewMemoryIdempotencyStore creates an empty store. A nil TimeProvider uses real time.
func NewMemoryIdempotencyStore(tp TimeProvider) *MemoryIdempotencyStore {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &MemoryIdempotencyStore{
		bindings: make(map[string]idempotencyBinding),
		time:     tp,
	}
}

// Reserve binds key to jobID unless an unexpired binding exists.
func (m *MemoryIdempotencyStore) Reserve(
	_ context.Context,
	key, jobID string,
	ttl time.Duration,
) (string, bool, error) {
	if key == "" {
		return "", false, ErrIdempotencyKeyRequired
	}
	if jobID == "" {
		return "", false, ErrJobIDRequired
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	now := m.time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)
	if b, ok := m.bindings[key]; ok {
		return b.jobID, false, nil
	}
	m.bindings[key] = idempotencyBinding{jobID: jobID, expiresAt: now.Add(ttl)}
	return jobID, true, nil
}

// Replace swaps the binding for key to newJobID when it is still bound to oldJobID.
func (m *MemoryIdempotencyStore) Replace(
	_ context.Context,
	key, oldJobID, newJobID string,
	ttl time.Duration,
) (bool, error) {
	if key == "" {
		return false, ErrIdempotencyKeyRequired
	}
	if newJobID == "" {
		return false, ErrJobIDRequired
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	now := m.time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)
	b, ok := m.bindings[key]
	if !ok || b.jobID != oldJobID {
		return false, nil
	}
	m.bindings[key] = idempotencyBinding{jobID: newJobID, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release removes the binding for key.
func (m *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	if key == "" {
		return ErrIdempotencyKeyRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bindings, key)
	return nil
}

// sweep drops expired bindings. Callers must hold m.mu.
func (m *MemoryIdempotencyStore) sweep(now time.Time) {
	for k, b := range m.bindings {
		if !now.Before(b.expiresAt) {
			delete(m.bindings, k)
		}
	}
}
