package orchestrator

import (
	"context"

	"github.com/jcmexdev/vendor-orchestration/internal/resilience"
	"github.com/jcmexdev/vendor-orchestration/internal/vendor"
)

type FraudChecker interface {
	Check(ctx context.Context, req vendor.FraudCheckRequest) resilience.Result[vendor.FraudCheckResponse]
}

type TaxCalculator interface {
	Calculate(ctx context.Context, req vendor.TaxRequest) resilience.Result[vendor.TaxResponse]
}

type ShippingRater interface {
	Rates(ctx context.Context, req vendor.ShippingRequest) resilience.Result[vendor.ShippingResponse]
}

type PaymentCharger interface {
	Charge(ctx context.Context, req vendor.PaymentRequest) resilience.Result[vendor.PaymentResponse]
}

// Vendors are the four resilient adapters a run talks to.
type Vendors struct {
	Fraud    FraudChecker
	Tax      TaxCalculator
	Shipping ShippingRater
	Payment  PaymentCharger
}

// VendorsFrom adapts the vendor package's adapters.
func VendorsFrom(a *vendor.Adapters) Vendors {
	return Vendors{
		Fraud:    a.Fraud,
		Tax:      a.Tax,
		Shipping: a.Shipping,
		Payment:  a.Payment,
	}
}
