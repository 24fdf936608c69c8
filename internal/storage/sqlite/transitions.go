package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jcmexdev/vendor-orchestration/internal/order"
	"github.com/jcmexdev/vendor-orchestration/internal/transitionlog"
)

// Transitions implements transitionlog.Repository.
type Transitions struct {
	db *sql.DB
}

// Save appends a transition row. It is safe to call concurrently.
func (r *Transitions) Save(ctx context.Context, e *transitionlog.Entry) error {
	const q = `
		INSERT INTO order_transitions
			(order_id, from_status, to_status, step, detail, trace_id, span_id, at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		e.OrderID,
		string(e.From),
		string(e.To),
		e.Step,
		nullableString(e.Detail),
		e.TraceID,
		e.SpanID,
		formatTime(e.At),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save transition for %q: %w", e.OrderID, err)
	}
	return nil
}

// History returns every transition of an order, oldest first.
func (r *Transitions) History(ctx context.Context, orderID string) ([]transitionlog.Entry, error) {
	const q = `
		SELECT order_id, from_status, to_status, step, COALESCE(detail, ''),
		       trace_id, span_id, at
		FROM   order_transitions
		WHERE  order_id = ?
		ORDER  BY id`

	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history for %q: %w", orderID, err)
	}
	defer rows.Close()

	var out []transitionlog.Entry
	for rows.Next() {
		var (
			e        transitionlog.Entry
			from, to string
			at       string
		)
		if err := rows.Scan(&e.OrderID, &from, &to, &e.Step, &e.Detail, &e.TraceID, &e.SpanID, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan transition: %w", err)
		}
		e.From, e.To = order.Status(from), order.Status(to)
		if e.At, err = parseRFC3339(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// nullableString stores NULL instead of an empty TEXT.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
