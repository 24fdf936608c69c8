package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/vendor-orchestration/internal/order"
)

func newOrder(t *testing.T, customer string, created time.Time) *order.Order {
	t.Helper()
	o, err := order.New(customer, "prod", 1, decimal.NewFromInt(42),
		order.Address{Street: "s", City: "c", State: "CA", ZipCode: "90001"}, created)
	require.NoError(t, err)
	return o
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	o := newOrder(t, "cust", time.Now())
	require.NoError(t, s.Save(ctx, o))

	got, err := s.Load(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o, got)

	got.Status = order.StatusCancelled
	again, err := s.Load(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCreated, again.Status, "loaded orders must not alias stored state")
}

func TestStore_LoadMissing(t *testing.T) {
	_, err := NewStore().Load(context.Background(), "nope")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestStore_SaveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStore().Save(ctx, newOrder(t, "cust", time.Now()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_ListByCustomer(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Now()

	second := newOrder(t, "alice", base.Add(time.Minute))
	first := newOrder(t, "alice", base)
	other := newOrder(t, "bob", base)
	for _, o := range []*order.Order{second, first, other} {
		require.NoError(t, s.Save(ctx, o))
	}

	got, err := s.ListByCustomer(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	none, err := s.ListByCustomer(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}
