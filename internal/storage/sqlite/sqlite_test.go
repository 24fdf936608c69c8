package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/vendor-orchestration/internal/order"
	"github.com/jcmexdev/vendor-orchestration/internal/transitionlog"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOrders_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).Orders()

	o, err := order.New("cust-1", "prod-1", 2, decimal.RequireFromString("1999.99"),
		order.Address{Street: "1 Main St", City: "New York", State: "NY", ZipCode: "10001"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, o))

	require.NoError(t, o.TransitionTo(order.StatusFraudCheckPassed, time.Now()))
	o.FraudScore, o.FraudRecommendation = 0.15, "APPROVE"
	o.ApplyPricing(decimal.RequireFromString("160.00"), decimal.RequireFromString("9.99"), "TRK-9", time.Now())
	require.NoError(t, store.Save(ctx, o))

	got, err := store.Load(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, order.StatusFraudCheckPassed, got.Status)
	assert.Equal(t, "2169.98", got.TotalAmount.StringFixed(2))
	assert.True(t, got.Amount.Equal(o.Amount))
	assert.Equal(t, "TRK-9", got.TrackingNumber)
	assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
	assert.InDelta(t, 0.15, got.FraudScore, 1e-9)
	assert.WithinDuration(t, o.CreatedAt, got.CreatedAt, time.Microsecond)
}

func TestOrders_LoadMissing(t *testing.T) {
	_, err := openTestDB(t).Orders().Load(context.Background(), "missing")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrders_ListByCustomer(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).Orders()
	addr := order.Address{Street: "s", City: "c", State: "TX", ZipCode: "73301"}
	base := time.Now()

	for i, cust := range []string{"alice", "bob", "alice"} {
		o, err := order.New(cust, "p", 1, decimal.NewFromInt(10), addr, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, o))
	}

	got, err := store.ListByCustomer(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.Before(got[1].CreatedAt))
}

func TestTransitions_History(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t).Transitions()

	require.NoError(t, repo.Save(ctx, transitionlog.NewEntry(ctx, "o-1", order.StatusCreated, order.StatusFraudCheckPassed, "fraud_check", "APPROVE")))
	require.NoError(t, repo.Save(ctx, transitionlog.NewEntry(ctx, "o-1", order.StatusFraudCheckPassed, order.StatusPaymentPending, "payment", "")))
	require.NoError(t, repo.Save(ctx, transitionlog.NewEntry(ctx, "o-2", order.StatusCreated, order.StatusCancelled, "fraud_check", "store down")))

	history, err := repo.History(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, order.StatusFraudCheckPassed, history[0].To)
	assert.Equal(t, "APPROVE", history[0].Detail)
	assert.Equal(t, order.StatusPaymentPending, history[1].To)
	assert.Empty(t, history[1].Detail)
}
