package httpx

import (
	"time"

	"github.com/shopspring/decimal"
)

type AddressDTO struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country,omitempty"`
}

type CreateOrderRequest struct {
	CustomerID      string          `json:"customerId"`
	ProductID       string          `json:"productId"`
	Quantity        int             `json:"quantity"`
	Amount          decimal.Decimal `json:"amount"`
	ShippingAddress *AddressDTO     `json:"shippingAddress"`
}

type OrderResponse struct {
	ID                   string          `json:"id"`
	CustomerID           string          `json:"customerId"`
	ProductID            string          `json:"productId"`
	Quantity             int             `json:"quantity"`
	Amount               decimal.Decimal `json:"amount"`
	ShippingAddress      AddressDTO      `json:"shippingAddress"`
	Status               string          `json:"status"`
	FraudScore           float64         `json:"fraudScore"`
	FraudRecommendation  string          `json:"fraudRecommendation,omitempty"`
	TaxAmount            decimal.Decimal `json:"taxAmount"`
	ShippingCost         decimal.Decimal `json:"shippingCost"`
	TrackingNumber       string          `json:"shippingTrackingNumber,omitempty"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	PaymentTransactionID string          `json:"paymentTransactionId,omitempty"`
	PaymentStatus        string          `json:"paymentStatus,omitempty"`
	CancelReason         string          `json:"cancelReason,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

type TransitionResponse struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	Step    string    `json:"step"`
	Detail  string    `json:"detail,omitempty"`
	TraceID string    `json:"traceId,omitempty"`
	At      time.Time `json:"at"`
}

type PaymentWebhookRequest struct {
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

type FraudWebhookRequest struct {
	OrderID        string  `json:"orderId"`
	CheckID        string  `json:"checkId"`
	Score          float64 `json:"score"`
	Recommendation string  `json:"recommendation"`
}

type WebhookResponse struct {
	Outcome string `json:"outcome"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
