package transitionlog

import (
	"context"
	"sync"
)

// Memory keeps transitions in process. Used when no database is configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]Entry)}
}

func (m *Memory) Save(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.OrderID] = append(m.entries[entry.OrderID], *entry)
	return nil
}

// History returns the transitions of an order in the order they were saved.
func (m *Memory) History(_ context.Context, orderID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries[orderID]...), nil
}
