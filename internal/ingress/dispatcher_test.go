package ingress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func collect(t *testing.T, ch <-chan Completion, n int) []Completion {
	t.Helper()
	out := make([]Completion, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case c := <-ch:
			out = append(out, c)
		case <-timeout:
			t.Fatalf("got %d completions, want %d", len(out), n)
		}
	}
	return out
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	q := NewChannelQueue(64)
	const workers, orders = 3, 12

	var running, peak atomic.Int32
	handle := func(context.Context, string) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil
	}

	done := make(chan Completion, orders)
	d := NewDispatcher(q, handle, workers, WithCompletions(done), WithDispatcherLogger(discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- d.Run(ctx) }()

	for i := 0; i < orders; i++ {
		require.NoError(t, q.Publish(ctx, fmt.Sprintf("o-%d", i)))
	}

	completions := collect(t, done, orders)
	for _, c := range completions {
		assert.NoError(t, c.Err)
		assert.False(t, c.Requeued)
	}
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Positive(t, peak.Load())

	cancel()
	assert.NoError(t, <-stopped)
	assert.Zero(t, d.InFlight())
}

func TestDispatcher_RequeueClassifier(t *testing.T) {
	q := NewChannelQueue(8)
	errTransient := errors.New("lock busy")
	errFinal := errors.New("aborted")

	var attempts atomic.Int32
	handle := func(_ context.Context, id string) error {
		switch id {
		case "transient":
			if attempts.Add(1) == 1 {
				return errTransient
			}
			return nil
		default:
			return errFinal
		}
	}

	done := make(chan Completion, 8)
	d := NewDispatcher(q, handle, 1,
		WithCompletions(done),
		WithDispatcherLogger(discard),
		WithRequeue(func(err error) bool { return errors.Is(err, errTransient) }),
		WithRequeueDelay(time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	require.NoError(t, q.Publish(ctx, "transient"))
	got := collect(t, done, 2)
	assert.ErrorIs(t, got[0].Err, errTransient)
	assert.True(t, got[0].Requeued)
	assert.NoError(t, got[1].Err)
	assert.EqualValues(t, 2, attempts.Load())

	require.NoError(t, q.Publish(ctx, "final"))
	got = collect(t, done, 1)
	assert.ErrorIs(t, got[0].Err, errFinal)
	assert.False(t, got[0].Requeued)
	assert.Zero(t, q.Len())
}

func TestDispatcher_ShutdownHandsBackInterruptedOrders(t *testing.T) {
	q, _ := newRedisQueue(t)

	started := make(chan struct{})
	handle := func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	d := NewDispatcher(q, handle, 2, WithDispatcherLogger(discard))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- d.Run(ctx) }()

	require.NoError(t, q.Publish(context.Background(), "o-1"))
	<-started
	cancel()
	require.NoError(t, <-stopped)

	pending, processing, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
	assert.EqualValues(t, 0, processing)
}
