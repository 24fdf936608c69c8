package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/vendor-orchestration/internal/lock"
	"github.com/jcmexdev/vendor-orchestration/internal/order"
	"github.com/jcmexdev/vendor-orchestration/internal/transitionlog"
	"github.com/jcmexdev/vendor-orchestration/internal/vendor"
)

var (
	// ErrNotYetResolvable means the order has not reached the point where it
	// waits for this callback. The sender should deliver it again later.
	ErrNotYetResolvable = errors.New("callback: not yet resolvable")
	// ErrInvalidCallback is returned for a missing order id or an unknown status.
	ErrInvalidCallback = errors.New("callback: invalid callback")
)

// Outcome describes what Resolve did with a callback.
type Outcome string

const (
	OutcomeApplied   Outcome = "APPLIED"
	OutcomeDuplicate Outcome = "DUPLICATE"
	OutcomeIgnored   Outcome = "IGNORED"
	OutcomeDropped   Outcome = "DROPPED"
)

type Option func(*Correlator)

func WithTransitionLog(repo transitionlog.Repository) Option {
	return func(c *Correlator) { c.transitions = repo }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Correlator) { c.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// Correlator applies payment callbacks to orders in PAYMENT_PENDING. It takes
// the same per-order lock as the orchestrator.
type Correlator struct {
	store       order.Store
	registry    Registry
	locker      lock.Locker
	transitions transitionlog.Repository
	logger      *slog.Logger
	now         func() time.Time
}

func NewCorrelator(store order.Store, registry Registry, locker lock.Locker, opts ...Option) *Correlator {
	c := &Correlator{
		store:    store,
		registry: registry,
		locker:   locker,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve applies a payment callback at most once.
func (c *Correlator) Resolve(ctx context.Context, orderID, transactionID, status string) (Outcome, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if strings.TrimSpace(orderID) == "" {
		return "", fmt.Errorf("%w: order id is required", ErrInvalidCallback)
	}
	switch status {
	case vendor.PaymentSuccess, vendor.PaymentFailed, vendor.PaymentPending:
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidCallback, status)
	}

	ctx, span := otel.Tracer("github.com/jcmexdev/vendor-orchestration/internal/callback").
		Start(ctx, "callback.resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("payment.transaction_id", transactionID),
		attribute.String("payment.status", status),
	)

	var outcome Outcome
	err := c.locker.WithLock(ctx, lock.OrderKey(orderID), func(ctx context.Context) error {
		var err error
		outcome, err = c.resolve(ctx, orderID, transactionID, status)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "callback not applied")
		return "", err
	}

	span.SetAttributes(attribute.String("callback.outcome", string(outcome)))
	return outcome, nil
}

func (c *Correlator) resolve(ctx context.Context, orderID, transactionID, status string) (Outcome, error) {
	log := c.logger.With("order_id", orderID, "transaction_id", transactionID, "status", status)

	pending, found, err := c.registry.Get(ctx, orderID, vendor.NamePayment)
	if err != nil {
		return "", err
	}

	if !found {
		o, err := c.store.Load(ctx, orderID)
		switch {
		case errors.Is(err, order.ErrNotFound):
			log.WarnContext(ctx, "callback for unknown order dropped")
			return OutcomeDropped, nil
		case err != nil:
			return "", fmt.Errorf("callback: load order %s: %w", orderID, err)
		case o.Status.IsTerminal():
			log.WarnContext(ctx, "callback for closed order dropped", "order_status", o.Status)
			return OutcomeDropped, nil
		default:
			// The vendor answered before PAYMENT_PENDING was recorded.
			return "", fmt.Errorf("%w: order %s is %s", ErrNotYetResolvable, orderID, o.Status)
		}
	}

	if pending.Completed {
		log.InfoContext(ctx, "duplicate callback ignored", "completed_at", pending.CompletedAt)
		return OutcomeDuplicate, nil
	}

	if status == vendor.PaymentPending {
		log.InfoContext(ctx, "interim pending callback ignored")
		return OutcomeIgnored, nil
	}

	o, err := c.store.Load(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("callback: load order %s: %w", orderID, err)
	}
	if o.Status != order.StatusPaymentPending {
		log.WarnContext(ctx, "callback for order not awaiting payment dropped", "order_status", o.Status)
		return OutcomeDropped, nil
	}

	if transactionID != "" && pending.TransactionID != "" && transactionID != pending.TransactionID {
		log.InfoContext(ctx, "callback transaction id differs from the one registered", "registered_transaction_id", pending.TransactionID)
	}

	now := c.now()
	won, err := c.registry.Complete(ctx, orderID, vendor.NamePayment, now)
	if err != nil {
		return "", err
	}
	if !won {
		return OutcomeDuplicate, nil
	}

	target := order.StatusPaymentCompleted
	if status == vendor.PaymentFailed {
		target = order.StatusPaymentFailed
	}

	from := o.Status
	if err := o.TransitionTo(target, now); err != nil {
		c.reopen(ctx, orderID)
		return "", err
	}
	if transactionID != "" {
		o.PaymentTransactionID = transactionID
	}
	o.PaymentStatus = status

	if err := c.store.Save(ctx, o); err != nil {
		c.reopen(ctx, orderID)
		return "", fmt.Errorf("callback: save order %s: %w", orderID, err)
	}

	transitionlog.Record(ctx, c.transitions, c.logger,
		transitionlog.NewEntry(ctx, orderID, from, target, "payment_callback", "transaction "+o.PaymentTransactionID))
	log.InfoContext(ctx, "payment callback applied", "order_status", target)

	return OutcomeApplied, nil
}

func (c *Correlator) reopen(ctx context.Context, orderID string) {
	if err := c.registry.Reopen(ctx, orderID, vendor.NamePayment); err != nil {
		c.logger.ErrorContext(ctx, "CRITICAL: failed to reopen pending callback", "order_id", orderID, "error", err)
	}
}
