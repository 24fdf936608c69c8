// Package order holds the order aggregate driven by the orchestrator and the
// callback correlator, together with its status transition table.
package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by a Store when no order exists for an id.
	ErrNotFound = errors.New("order: not found")
	// ErrIllegalTransition is returned when a status change is not in the
	// transition table.
	ErrIllegalTransition = errors.New("order: illegal status transition")
	// ErrInvalid is returned by New when the order fails validation.
	ErrInvalid = errors.New("order: invalid")
)

// DefaultCountry is applied to shipping addresses that omit a country.
const DefaultCountry = "USA"

type Address struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

// Order is the aggregate persisted through a Store.
type Order struct {
	ID              string
	CustomerID      string
	ProductID       string
	Quantity        int
	Amount          decimal.Decimal
	ShippingAddress Address
	Status          Status

	FraudScore          float64
	FraudRecommendation string

	// TaxAmount, ShippingCost and TrackingNumber are written together with
	// TotalAmount by ApplyPricing.
	TaxAmount      decimal.Decimal
	ShippingCost   decimal.Decimal
	TrackingNumber string
	TotalAmount    decimal.Decimal

	PaymentTransactionID string
	PaymentStatus        string

	CancelReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New validates the input and returns an order in CREATED.
func New(customerID, productID string, quantity int, amount decimal.Decimal, addr Address, now time.Time) (*Order, error) {
	var problems []string
	if strings.TrimSpace(customerID) == "" {
		problems = append(problems, "customer id is required")
	}
	if strings.TrimSpace(productID) == "" {
		problems = append(problems, "product id is required")
	}
	if quantity <= 0 {
		problems = append(problems, "quantity must be positive")
	}
	if !amount.IsPositive() {
		problems = append(problems, "amount must be positive")
	}
	if addr.Street == "" || addr.City == "" || addr.State == "" || addr.ZipCode == "" {
		problems = append(problems, "shipping address requires street, city, state and zip code")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}

	if addr.Country == "" {
		addr.Country = DefaultCountry
	}
	now = now.UTC()

	return &Order{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		ProductID:       productID,
		Quantity:        quantity,
		Amount:          amount,
		ShippingAddress: addr,
		Status:          StatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// TransitionTo moves the order to status to, rejecting anything the
// transition table does not allow.
func (o *Order) TransitionTo(to Status, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s (order %s)", ErrIllegalTransition, o.Status, to, o.ID)
	}
	o.Status = to
	o.UpdatedAt = now.UTC()
	return nil
}

// Cancel moves a non-terminal order to CANCELLED and keeps the reason.
// Vendor fields written so far are left untouched.
func (o *Order) Cancel(reason string, now time.Time) error {
	if err := o.TransitionTo(StatusCancelled, now); err != nil {
		return err
	}
	o.CancelReason = reason
	return nil
}

// ApplyPricing records the resolved tax and shipping and derives the total.
// The total is never written on its own.
func (o *Order) ApplyPricing(tax, shipping decimal.Decimal, trackingNumber string, now time.Time) {
	o.TaxAmount = tax
	o.ShippingCost = shipping
	o.TrackingNumber = trackingNumber
	o.TotalAmount = o.Amount.Add(tax).Add(shipping)
	o.UpdatedAt = now.UTC()
}

// Priced reports whether tax and shipping have been resolved. Amount is
// validated positive at creation, so a zero total means "not yet priced".
func (o *Order) Priced() bool {
	return o.TotalAmount.IsPositive()
}

// Clone returns a copy that shares no mutable state with o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}
