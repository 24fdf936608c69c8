package order

import "context"

// Store is the persistence port for orders. Implementations return
// ErrNotFound (possibly wrapped) when Load misses.
type Store interface {
	Load(ctx context.Context, id string) (*Order, error)
	// Save inserts or replaces the order.
	Save(ctx context.Context, o *Order) error
	ListByCustomer(ctx context.Context, customerID string) ([]*Order, error)
}
