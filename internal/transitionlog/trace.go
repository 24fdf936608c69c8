package transitionlog

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/vendor-orchestration/internal/order"
)

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	// TraceID is the W3C trace ID (32 lowercase hex chars), empty without an
	// active span.
	TraceID string
	SpanID  string
}

// ExtractTraceInfo reads the active OpenTelemetry span from ctx.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// NewEntry builds an Entry stamped with the trace found in ctx.
//
//	entry := transitionlog.NewEntry(ctx, o.ID, order.StatusCreated, order.StatusFraudCheckPassed, "fraud_check", "APPROVE")
func NewEntry(ctx context.Context, orderID string, from, to order.Status, step, detail string) *Entry {
	ti := ExtractTraceInfo(ctx)
	return &Entry{
		OrderID: orderID,
		From:    from,
		To:      to,
		Step:    step,
		Detail:  detail,
		TraceID: ti.TraceID,
		SpanID:  ti.SpanID,
		At:      time.Now().UTC(),
	}
}

// Record appends an entry if repo is non-nil. A failed write is logged and
// swallowed; the order row stays the source of truth.
func Record(ctx context.Context, repo Repository, logger *slog.Logger, entry *Entry) {
	if repo == nil || entry == nil {
		return
	}
	if err := repo.Save(ctx, entry); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.WarnContext(ctx, "failed to write transition log",
			"order_id", entry.OrderID,
			"from", entry.From,
			"to", entry.To,
			"error", err,
		)
	}
}
