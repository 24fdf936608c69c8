package ingress

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler processes one order id.
type Handler func(ctx context.Context, orderID string) error

// Completion reports one finished delivery.
type Completion struct {
	OrderID  string
	Err      error
	Requeued bool
	Duration time.Duration
}

type DispatcherOption func(*Dispatcher)

// WithRequeue decides which handler errors hand the order back to the
// source. The default requeues only when the dispatcher itself is stopping.
func WithRequeue(fn func(error) bool) DispatcherOption {
	return func(d *Dispatcher) { d.requeue = fn }
}

// WithCompletions reports every finished delivery on ch.
func WithCompletions(ch chan<- Completion) DispatcherOption {
	return func(d *Dispatcher) { d.completions = ch }
}

// WithRequeueDelay holds a failed delivery back for d before handing it
// back, so a persistent fault does not spin. Default one second.
func WithRequeueDelay(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.requeueDelay = d }
}

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// Dispatcher pulls order ids from a Source and runs up to Workers handlers
// at once.
type Dispatcher struct {
	src          Source
	handle       Handler
	workers      int
	requeue      func(error) bool
	requeueDelay time.Duration
	completions  chan<- Completion
	logger       *slog.Logger

	inFlight atomic.Int64
}

func NewDispatcher(src Source, handle Handler, workers int, opts ...DispatcherOption) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		src:          src,
		handle:       handle,
		workers:      workers,
		requeue:      func(error) bool { return false },
		requeueDelay: time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InFlight returns the number of handlers currently running.
func (d *Dispatcher) InFlight() int64 { return d.inFlight.Load() }

// Run dispatches until ctx is done or the source is closed, then waits for
// running handlers. Handlers see ctx, so a shutdown interrupts them and their
// deliveries are handed back.
func (d *Dispatcher) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(d.workers)

	d.logger.InfoContext(ctx, "dispatcher started", "workers", d.workers)

	for {
		del, err := d.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				break
			}
			d.logger.ErrorContext(ctx, "failed to receive order", "error", err)
			if sleepErr := pause(ctx, time.Second); sleepErr != nil {
				break
			}
			continue
		}

		d.inFlight.Add(1)
		g.Go(func() error {
			defer d.inFlight.Add(-1)
			d.dispatch(ctx, del)
			return nil
		})
	}

	_ = g.Wait()
	d.logger.Info("dispatcher stopped")
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, del Delivery) {
	id := del.OrderID()
	start := time.Now()

	err := d.handle(ctx, id)

	// Settle the delivery even when shutting down.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	requeued := err != nil && (ctx.Err() != nil || d.requeue(err))
	var settleErr error
	if requeued {
		if ctx.Err() == nil {
			_ = pause(ctx, d.requeueDelay)
		}
		settleErr = del.Nack(settleCtx)
	} else {
		settleErr = del.Ack(settleCtx)
	}

	log := d.logger.With("order_id", id, "duration", time.Since(start))
	switch {
	case err == nil:
		log.InfoContext(ctx, "order processed")
	case requeued:
		log.WarnContext(ctx, "order handed back for redelivery", "error", err)
	default:
		log.ErrorContext(ctx, "order processing failed", "error", err)
	}
	if settleErr != nil {
		log.ErrorContext(ctx, "failed to settle delivery", "requeue", requeued, "error", settleErr)
	}

	if d.completions != nil {
		c := Completion{OrderID: id, Err: err, Requeued: requeued, Duration: time.Since(start)}
		select {
		case d.completions <- c:
		case <-ctx.Done():
		}
	}
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
