// Package orchestrator drives an order through fraud screening, pricing and
// payment, one persisted status at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/vendor-orchestration/internal/callback"
	"github.com/jcmexdev/vendor-orchestration/internal/lock"
	"github.com/jcmexdev/vendor-orchestration/internal/order"
	"github.com/jcmexdev/vendor-orchestration/internal/transitionlog"
	"github.com/jcmexdev/vendor-orchestration/internal/vendor"
)

const tracerName = "github.com/jcmexdev/vendor-orchestration/internal/orchestrator"

// ErrRunAborted wraps the internal fault that made a run cancel its order.
var ErrRunAborted = errors.New("orchestrator: run aborted")

// Config holds the fixed parts of the requests a run sends to vendors.
type Config struct {
	// CallbackBaseURL is where vendors reach this service's webhooks.
	CallbackBaseURL string
	Currency        string
	// Origin is the warehouse every shipment leaves from.
	Origin        vendor.Address
	PackageWeight float64
	ServiceType   string
}

func DefaultConfig() Config {
	return Config{
		CallbackBaseURL: "http://localhost:8080",
		Currency:        "USD",
		Origin: vendor.Address{
			Street:  "1000 Warehouse Blvd",
			City:    "Los Angeles",
			State:   "CA",
			ZipCode: "90001",
			Country: order.DefaultCountry,
		},
		PackageWeight: 2.5,
		ServiceType:   vendor.ServiceStandard,
	}
}

func (c Config) paymentCallbackURL() string { return c.CallbackBaseURL + "/webhooks/payment" }

func (c Config) fraudCallbackURL() string { return c.CallbackBaseURL + "/webhooks/fraud" }

type Option func(*Orchestrator)

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

func WithTransitionLog(repo transitionlog.Repository) Option {
	return func(o *Orchestrator) { o.transitions = repo }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs the fixed sequence fraud, then tax and shipping in
// parallel, then payment. Each step starts from a persisted status, so a
// redelivered order resumes where the last run stopped.
type Orchestrator struct {
	store       order.Store
	vendors     Vendors
	registry    callback.Registry
	locker      lock.Locker
	cfg         Config
	transitions transitionlog.Repository
	logger      *slog.Logger
	now         func() time.Time

	steps map[order.Status][]step
}

func New(store order.Store, vendors Vendors, registry callback.Registry, locker lock.Locker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		vendors:  vendors,
		registry: registry,
		locker:   locker,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.steps = map[order.Status][]step{
		order.StatusCreated:          {fraudStep{o}},
		order.StatusFraudCheckPassed: {pricingStep{o}, paymentStep{o}},
	}
	return o
}

// run is the state of one Process call.
type run struct {
	order *order.Order
	// persisted is the last copy known to be in the store.
	persisted *order.Order
	log       *slog.Logger
}

// Process advances the order until it is terminal or waiting for a payment
// callback. Processing a terminal order is a no-op.
//
// An internal fault cancels the order and returns an error wrapping
// ErrRunAborted. If ctx ends mid-run the order is left at its last persisted
// status and ctx's error is returned.
func (o *Orchestrator) Process(ctx context.Context, orderID string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "orchestrator.process")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	err := o.locker.WithLock(ctx, lock.OrderKey(orderID), func(ctx context.Context) error {
		return o.process(ctx, orderID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "orchestration failed")
	}
	return err
}

func (o *Orchestrator) process(ctx context.Context, orderID string) error {
	current, err := o.store.Load(ctx, orderID)
	if err != nil {
		return fmt.Errorf("orchestrator: load order %s: %w", orderID, err)
	}

	r := &run{
		order:     current,
		persisted: current.Clone(),
		log:       o.logger.With("order_id", orderID),
	}

	for {
		status := r.order.Status
		if status.IsTerminal() {
			r.log.InfoContext(ctx, "order closed", "status", status)
			return nil
		}
		if status == order.StatusPaymentPending {
			return o.awaitCallback(ctx, r)
		}

		steps, ok := o.steps[status]
		if !ok {
			return o.abort(ctx, r, "dispatch", fmt.Errorf("no step handles status %s", status))
		}
		for _, s := range steps {
			if err := o.execute(ctx, r, s); err != nil {
				if ctx.Err() != nil {
					r.log.WarnContext(ctx, "run interrupted", "step", s.Name(), "status", r.persisted.Status, "error", err)
					return err
				}
				return o.abort(ctx, r, s.Name(), err)
			}
			if r.order.Status != status {
				break
			}
		}
		if r.order.Status == status {
			return o.abort(ctx, r, "dispatch", fmt.Errorf("status %s made no progress", status))
		}
	}
}

func (o *Orchestrator) execute(ctx context.Context, r *run, s step) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "orchestrator."+s.Name())
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", r.order.ID),
		attribute.String("order.status", r.order.Status.String()),
	)

	if err := s.Execute(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, s.Name()+" failed")
		return err
	}
	span.SetAttributes(attribute.String("order.next_status", r.order.Status.String()))
	return nil
}

// persist saves the working copy and logs the status change, if any.
func (o *Orchestrator) persist(ctx context.Context, r *run, stepName, detail string) error {
	from := r.persisted.Status
	if err := o.store.Save(ctx, r.order); err != nil {
		return fmt.Errorf("save order %s: %w", r.order.ID, err)
	}
	r.persisted = r.order.Clone()

	if to := r.order.Status; to != from {
		transitionlog.Record(ctx, o.transitions, o.logger,
			transitionlog.NewEntry(ctx, r.order.ID, from, to, stepName, detail))
		r.log.InfoContext(ctx, "order status changed", "from", from, "to", to, "step", stepName)
	}
	return nil
}

// awaitCallback makes sure a PAYMENT_PENDING order has a pending callback
// record. Register is idempotent, so a redelivery after a crash between the
// save and the registration repairs it.
func (o *Orchestrator) awaitCallback(ctx context.Context, r *run) error {
	err := o.registry.Register(ctx, callback.Pending{
		OrderID:       r.order.ID,
		Vendor:        vendor.NamePayment,
		TransactionID: r.order.PaymentTransactionID,
		RegisteredAt:  o.now().UTC(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return o.abort(ctx, r, "register_callback", err)
	}
	r.log.InfoContext(ctx, "awaiting payment callback", "transaction_id", r.order.PaymentTransactionID)
	return nil
}

// abort cancels the order from its last persisted status. The save is best
// effort: the store is often the thing that failed.
func (o *Orchestrator) abort(ctx context.Context, r *run, stepName string, cause error) error {
	r.log.ErrorContext(ctx, "orchestration aborted, cancelling order", "step", stepName, "error", cause)

	cancelled := r.persisted.Clone()
	from := cancelled.Status
	if err := cancelled.Cancel(fmt.Sprintf("%s: %v", stepName, cause), o.now()); err != nil {
		r.log.ErrorContext(ctx, "order cannot be cancelled", "status", from, "error", err)
	} else {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := o.store.Save(saveCtx, cancelled); err != nil {
			r.log.ErrorContext(ctx, "CRITICAL: failed to persist cancellation", "error", err)
		} else {
			r.persisted = cancelled
			transitionlog.Record(saveCtx, o.transitions, o.logger,
				transitionlog.NewEntry(ctx, cancelled.ID, from, order.StatusCancelled, stepName, cancelled.CancelReason))
		}
	}

	return fmt.Errorf("%w: order %s at %s: %w", ErrRunAborted, r.order.ID, stepName, cause)
}
