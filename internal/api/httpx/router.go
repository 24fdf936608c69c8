package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/vendor-orchestration/internal/api/httpx/middlewares"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestMetadata)
	r.Use(middlewares.Tracing)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/orders", handler.CreateOrder)
	r.Get("/orders/{id}", handler.GetOrderByID)
	r.Get("/orders/{id}/transitions", handler.GetOrderTransitions)
	r.Get("/orders/customer/{customerId}", handler.GetCustomerOrders)

	r.Post("/webhooks/payment", handler.PaymentWebhook)
	r.Post("/webhooks/fraud", handler.FraudWebhook)

	r.Get("/vendors/health", handler.VendorHealth)
	return r
}
