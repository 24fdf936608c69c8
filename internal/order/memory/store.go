// Package memory is an in-process order.Store used when no database path is
// configured and throughout the tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jcmexdev/vendor-orchestration/internal/order"
)

type Store struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

func NewStore() *Store {
	return &Store{
		orders: make(map[string]*order.Order),
	}
}

func (s *Store) Load(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, order.ErrNotFound)
	}
	return o.Clone(), nil
}

func (s *Store) Save(ctx context.Context, o *order.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.ID] = o.Clone()
	return nil
}

// ListByCustomer returns the customer's orders, oldest first.
func (s *Store) ListByCustomer(_ context.Context, customerID string) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*order.Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
