package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nyAddress = Address{Street: "1 Main St", City: "New York", State: "NY", ZipCode: "10001"}

func TestNew(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	o, err := New("cust-1", "prod-1", 1, decimal.RequireFromString("1999.99"), nyAddress, now)
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusCreated, o.Status)
	assert.Equal(t, DefaultCountry, o.ShippingAddress.Country)
	assert.Equal(t, now, o.CreatedAt)
	assert.False(t, o.Priced())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		customer string
		product  string
		quantity int
		amount   string
		addr     Address
	}{
		{"missing customer", "", "p", 1, "10", nyAddress},
		{"missing product", "c", " ", 1, "10", nyAddress},
		{"zero quantity", "c", "p", 0, "10", nyAddress},
		{"zero amount", "c", "p", 1, "0", nyAddress},
		{"negative amount", "c", "p", 1, "-5", nyAddress},
		{"missing zip", "c", "p", 1, "10", Address{Street: "s", City: "c", State: "NY"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.customer, tt.product, tt.quantity, decimal.RequireFromString(tt.amount), tt.addr, time.Now())
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[Status][]Status{
		StatusCreated:          {StatusFraudCheckPassed, StatusFraudCheckFailed, StatusCancelled},
		StatusFraudCheckPassed: {StatusPaymentPending, StatusPaymentCompleted, StatusPaymentFailed, StatusCancelled},
		StatusPaymentPending:   {StatusPaymentCompleted, StatusPaymentFailed, StatusCancelled},
	}

	for _, from := range Statuses() {
		for _, to := range Statuses() {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusFraudCheckFailed: true,
		StatusPaymentCompleted: true,
		StatusPaymentFailed:    true,
		StatusCancelled:        true,
	}
	for _, s := range Statuses() {
		assert.Equalf(t, terminal[s], s.IsTerminal(), "%s", s)
	}
	assert.False(t, Status("BOGUS").IsTerminal())
	assert.False(t, Status("BOGUS").Valid())
}

func TestTransitionTo_NeverBackward(t *testing.T) {
	o, err := New("c", "p", 1, decimal.NewFromInt(10), nyAddress, time.Now())
	require.NoError(t, err)

	require.NoError(t, o.TransitionTo(StatusFraudCheckPassed, time.Now()))
	require.NoError(t, o.TransitionTo(StatusPaymentPending, time.Now()))

	err = o.TransitionTo(StatusCreated, time.Now())
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Equal(t, StatusPaymentPending, o.Status)

	require.NoError(t, o.TransitionTo(StatusPaymentCompleted, time.Now()))
	assert.ErrorIs(t, o.Cancel("late", time.Now()), ErrIllegalTransition)
	assert.Empty(t, o.CancelReason)
}

func TestApplyPricing(t *testing.T) {
	o, err := New("c", "p", 1, decimal.RequireFromString("1999.99"), nyAddress, time.Now())
	require.NoError(t, err)

	o.ApplyPricing(decimal.RequireFromString("160.00"), decimal.RequireFromString("9.99"), "TRK-1", time.Now())

	assert.True(t, o.Priced())
	assert.Equal(t, "2169.98", o.TotalAmount.StringFixed(2))
	assert.True(t, o.TotalAmount.Equal(o.Amount.Add(o.TaxAmount).Add(o.ShippingCost)))
}

func TestClone(t *testing.T) {
	o, err := New("c", "p", 1, decimal.NewFromInt(10), nyAddress, time.Now())
	require.NoError(t, err)

	c := o.Clone()
	c.Status = StatusCancelled
	c.ShippingAddress.City = "Elsewhere"

	assert.Equal(t, StatusCreated, o.Status)
	assert.Equal(t, "New York", o.ShippingAddress.City)
	assert.Nil(t, (*Order)(nil).Clone())
}
