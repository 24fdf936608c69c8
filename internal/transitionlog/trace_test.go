package transitionlog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/vendor-orchestration/internal/order"
)

func TestExtractTraceInfo_NoSpan(t *testing.T) {
	assert.Equal(t, TraceInfo{}, ExtractTraceInfo(context.Background()))
}

func TestNewEntry_StampsTrace(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	e := NewEntry(ctx, "o-1", order.StatusCreated, order.StatusFraudCheckPassed, "fraud_check", "APPROVE")

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", e.TraceID)
	assert.Equal(t, "00f067aa0ba902b7", e.SpanID)
	assert.Equal(t, "o-1", e.OrderID)
	assert.False(t, e.At.IsZero())
}

type failingRepo struct{ Memory }

func (failingRepo) Save(context.Context, *Entry) error { return errors.New("disk full") }

func TestRecord(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	Record(ctx, nil, nil, NewEntry(ctx, "o-1", order.StatusCreated, order.StatusCancelled, "x", ""))
	Record(ctx, failingRepo{}, nil, NewEntry(ctx, "o-1", order.StatusCreated, order.StatusCancelled, "x", ""))

	Record(ctx, mem, nil, NewEntry(ctx, "o-1", order.StatusCreated, order.StatusFraudCheckPassed, "fraud_check", ""))
	Record(ctx, mem, nil, NewEntry(ctx, "o-1", order.StatusFraudCheckPassed, order.StatusPaymentCompleted, "payment", ""))

	history, err := mem.History(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, order.StatusPaymentCompleted, history[1].To)
}
