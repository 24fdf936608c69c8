package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jcmexdev/vendor-orchestration/internal/order"
)

// Orders implements order.Store.
type Orders struct {
	db *sql.DB
}

const orderColumns = `
	id, customer_id, product_id, quantity, amount,
	ship_street, ship_city, ship_state, ship_zip, ship_country,
	status, fraud_score, fraud_recommendation,
	tax_amount, shipping_cost, tracking_number, total_amount,
	payment_transaction_id, payment_status, cancel_reason,
	created_at, updated_at`

// Save upserts the full order row.
func (r *Orders) Save(ctx context.Context, o *order.Order) error {
	const q = `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status                 = excluded.status,
			fraud_score            = excluded.fraud_score,
			fraud_recommendation   = excluded.fraud_recommendation,
			tax_amount             = excluded.tax_amount,
			shipping_cost          = excluded.shipping_cost,
			tracking_number        = excluded.tracking_number,
			total_amount           = excluded.total_amount,
			payment_transaction_id = excluded.payment_transaction_id,
			payment_status         = excluded.payment_status,
			cancel_reason          = excluded.cancel_reason,
			updated_at             = excluded.updated_at`

	addr := o.ShippingAddress
	_, err := r.db.ExecContext(ctx, q,
		o.ID, o.CustomerID, o.ProductID, o.Quantity, o.Amount.String(),
		addr.Street, addr.City, addr.State, addr.ZipCode, addr.Country,
		string(o.Status), o.FraudScore, o.FraudRecommendation,
		o.TaxAmount.String(), o.ShippingCost.String(), o.TrackingNumber, o.TotalAmount.String(),
		o.PaymentTransactionID, o.PaymentStatus, o.CancelReason,
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save order %q: %w", o.ID, err)
	}
	return nil
}

func (r *Orders) Load(ctx context.Context, id string) (*order.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: order %q: %w", id, order.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load order %q: %w", id, err)
	}
	return o, nil
}

func (r *Orders) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = ? ORDER BY created_at, id`, customerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list orders for %q: %w", customerID, err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*order.Order, error) {
	var (
		o                    order.Order
		status               string
		createdAt, updatedAt string
	)
	err := s.Scan(
		&o.ID, &o.CustomerID, &o.ProductID, &o.Quantity, &o.Amount,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.State,
		&o.ShippingAddress.ZipCode, &o.ShippingAddress.Country,
		&status, &o.FraudScore, &o.FraudRecommendation,
		&o.TaxAmount, &o.ShippingCost, &o.TrackingNumber, &o.TotalAmount,
		&o.PaymentTransactionID, &o.PaymentStatus, &o.CancelReason,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)

	if o.CreatedAt, err = parseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}
