// Package transitionlog is the append-only audit trail of order status
// transitions.
//
// Every row records which step moved an order from one status to another and
// the trace that was active at the time, so a row can be followed straight
// into the distributed trace in Grafana/Tempo.
package transitionlog

import (
	"context"
	"time"

	"github.com/jcmexdev/vendor-orchestration/internal/order"
)

// Entry is a single transition.
type Entry struct {
	OrderID string
	From    order.Status
	To      order.Status

	// Step names the component that applied the transition, e.g.
	// "fraud_check" or "payment_callback".
	Step string

	// Detail is free text: the vendor outcome, a cancel reason, a transaction id.
	Detail string

	TraceID string
	SpanID  string

	At time.Time
}

// Repository persists transitions. Save appends; rows are never updated.
type Repository interface {
	Save(ctx context.Context, entry *Entry) error
	History(ctx context.Context, orderID string) ([]Entry, error)
}
