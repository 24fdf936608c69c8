// Package callback reconciles asynchronous vendor notifications with the
// orders waiting for them.
package callback

import (
	"context"
	"sync"
	"time"
)

// Pending is the record of an order awaiting an out-of-band vendor answer.
// It can be completed exactly once.
type Pending struct {
	OrderID string
	Vendor  string
	// TransactionID is the id known when the wait started: the vendor's own
	// id, or a placeholder when the vendor was unreachable.
	TransactionID string
	RegisteredAt  time.Time
	Completed     bool
	CompletedAt   time.Time
}

// Registry stores Pending records keyed by order id and vendor.
type Registry interface {
	// Register records p unless a record already exists for its key.
	Register(ctx context.Context, p Pending) error
	Get(ctx context.Context, orderID, vendor string) (Pending, bool, error)
	// Complete flips the single-use flag. It reports false when the record is
	// missing or was already completed.
	Complete(ctx context.Context, orderID, vendor string, at time.Time) (bool, error)
	// Reopen clears the completion flag after the transition it guarded could
	// not be persisted.
	Reopen(ctx context.Context, orderID, vendor string) error
}

func registryKey(orderID, vendor string) string {
	return vendor + ":" + orderID
}

// MemoryRegistry keeps Pending records in process.
type MemoryRegistry struct {
	mu      sync.Mutex
	pending map[string]Pending
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{pending: make(map[string]Pending)}
}

func (m *MemoryRegistry) Register(_ context.Context, p Pending) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := registryKey(p.OrderID, p.Vendor)
	if _, ok := m.pending[key]; ok {
		return nil
	}
	p.Completed = false
	p.CompletedAt = time.Time{}
	m.pending[key] = p
	return nil
}

func (m *MemoryRegistry) Get(_ context.Context, orderID, vendor string) (Pending, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[registryKey(orderID, vendor)]
	return p, ok, nil
}

func (m *MemoryRegistry) Complete(_ context.Context, orderID, vendor string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := registryKey(orderID, vendor)
	p, ok := m.pending[key]
	if !ok || p.Completed {
		return false, nil
	}
	p.Completed = true
	p.CompletedAt = at.UTC()
	m.pending[key] = p
	return true, nil
}

func (m *MemoryRegistry) Reopen(_ context.Context, orderID, vendor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := registryKey(orderID, vendor)
	if p, ok := m.pending[key]; ok {
		p.Completed = false
		p.CompletedAt = time.Time{}
		m.pending[key] = p
	}
	return nil
}
