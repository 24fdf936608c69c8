package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/vendor-orchestration/internal/order"
	"github.com/jcmexdev/vendor-orchestration/internal/resilience"
	"github.com/jcmexdev/vendor-orchestration/internal/vendor"
)

// step is one unit of work keyed by the status it starts from. A step either
// moves the order forward and persists it, or returns an error.
type step interface {
	Name() string
	Execute(ctx context.Context, r *run) error
}

func toVendorAddress(a order.Address) vendor.Address {
	return vendor.Address{
		Street:  a.Street,
		City:    a.City,
		State:   a.State,
		ZipCode: a.ZipCode,
		Country: a.Country,
	}
}

// --- fraudStep ---

type fraudStep struct{ o *Orchestrator }

func (fraudStep) Name() string { return "fraud_check" }

func (s fraudStep) Execute(ctx context.Context, r *run) error {
	ord := r.order
	res := s.o.vendors.Fraud.Check(ctx, vendor.FraudCheckRequest{
		OrderID:     ord.ID,
		CustomerID:  ord.CustomerID,
		Amount:      ord.Amount,
		CallbackURL: s.o.cfg.fraudCallbackURL(),
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	ord.FraudScore = res.Value.Score
	ord.FraudRecommendation = strings.ToUpper(res.Value.Recommendation)

	next, detail := order.StatusFraudCheckPassed, res.Outcome.String()+" "+ord.FraudRecommendation
	if res.IsRejected() {
		next, detail = order.StatusFraudCheckFailed, res.Reason
	}
	if res.Degraded() {
		r.log.WarnContext(ctx, "fraud check degraded, proceeding on fallback score", "score", ord.FraudScore, "cause", res.Cause)
	}

	if err := ord.TransitionTo(next, s.o.now()); err != nil {
		return err
	}
	return s.o.persist(ctx, r, s.Name(), detail)
}

// --- pricingStep ---

// pricingStep resolves tax and shipping concurrently and fixes the total.
// Already priced orders are left alone.
type pricingStep struct{ o *Orchestrator }

func (pricingStep) Name() string { return "pricing" }

func (s pricingStep) Execute(ctx context.Context, r *run) error {
	ord := r.order
	if ord.Priced() {
		return nil
	}

	var (
		tax  resilience.Result[vendor.TaxResponse]
		ship resilience.Result[vendor.ShippingResponse]
	)
	// Vendor faults are absorbed into the results; the group only reports
	// a run that was cancelled while either call was in flight.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tax = s.o.vendors.Tax.Calculate(gctx, vendor.TaxRequest{
			OrderID: ord.ID,
			Amount:  ord.Amount,
			Address: toVendorAddress(ord.ShippingAddress),
		})
		return gctx.Err()
	})
	g.Go(func() error {
		ship = s.o.vendors.Shipping.Rates(gctx, vendor.ShippingRequest{
			OrderID:     ord.ID,
			FromAddress: s.o.cfg.Origin,
			ToAddress:   toVendorAddress(ord.ShippingAddress),
			Weight:      s.o.cfg.PackageWeight,
			ServiceType: s.o.cfg.ServiceType,
		})
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if tax.Degraded() {
		r.log.WarnContext(ctx, "tax degraded to fallback", "cause", tax.Cause)
	}
	if ship.Degraded() {
		r.log.WarnContext(ctx, "shipping degraded to fallback", "cause", ship.Cause)
	}

	ord.ApplyPricing(tax.Value.TaxAmount.Round(2), ship.Value.Cost, ship.Value.TrackingNumber, s.o.now())
	r.log.InfoContext(ctx, "order priced",
		"tax", ord.TaxAmount.StringFixed(2),
		"tax_outcome", tax.Outcome.String(),
		"shipping", ord.ShippingCost.StringFixed(2),
		"shipping_outcome", ship.Outcome.String(),
		"total", ord.TotalAmount.StringFixed(2),
	)
	return s.o.persist(ctx, r, s.Name(), "total "+ord.TotalAmount.StringFixed(2))
}

// --- paymentStep ---

type paymentStep struct{ o *Orchestrator }

func (paymentStep) Name() string { return "payment" }

func (s paymentStep) Execute(ctx context.Context, r *run) error {
	ord := r.order
	if !ord.Priced() {
		return errors.New("payment requested before the order was priced")
	}

	res := s.o.vendors.Payment.Charge(ctx, vendor.PaymentRequest{
		OrderID:     ord.ID,
		CustomerID:  ord.CustomerID,
		Amount:      ord.TotalAmount,
		Currency:    s.o.cfg.Currency,
		CallbackURL: s.o.cfg.paymentCallbackURL(),
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	resp := res.Value
	var next order.Status
	switch {
	case res.IsRejected():
		next = order.StatusPaymentFailed
		ord.PaymentStatus = vendor.PaymentFailed
	case res.Succeeded() && resp.Status == vendor.PaymentSuccess:
		next = order.StatusPaymentCompleted
		ord.PaymentStatus = vendor.PaymentSuccess
	default:
		// Vendor PENDING, or the fallback after the vendor could not be reached.
		next = order.StatusPaymentPending
		ord.PaymentStatus = vendor.PaymentPending
		if resp.TransactionID == "" {
			resp.TransactionID = vendor.PlaceholderTransactionID(ord.ID)
		}
	}
	if resp.TransactionID != "" {
		ord.PaymentTransactionID = resp.TransactionID
	}

	if err := ord.TransitionTo(next, s.o.now()); err != nil {
		return err
	}

	detail := fmt.Sprintf("%s transaction %s", res.Outcome, ord.PaymentTransactionID)
	if res.IsRejected() {
		detail = res.Reason
	}
	// A PAYMENT_PENDING order gets its callback record from the dispatch
	// loop, which also covers redeliveries.
	return s.o.persist(ctx, r, s.Name(), detail)
}
