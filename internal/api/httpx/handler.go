package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/vendor-orchestration/internal/callback"
	"github.com/jcmexdev/vendor-orchestration/internal/ingress"
	"github.com/jcmexdev/vendor-orchestration/internal/order"
	"github.com/jcmexdev/vendor-orchestration/internal/pkg/cache"
	"github.com/jcmexdev/vendor-orchestration/internal/pkg/constants"
	"github.com/jcmexdev/vendor-orchestration/internal/resilience"
	"github.com/jcmexdev/vendor-orchestration/internal/transitionlog"
)

// idempotencyTTL is how long a replayed X-Idempotency-Key returns the
// original order.
const idempotencyTTL = 24 * time.Hour

type CallbackResolver interface {
	Resolve(ctx context.Context, orderID, transactionID, status string) (callback.Outcome, error)
}

type BreakerHealth interface {
	Snapshot() []resilience.BreakerStatus
}

// Handler serves the order, webhook and vendor health endpoints. Orders are
// processed asynchronously: creation only persists and enqueues.
type Handler struct {
	orders      order.Store
	publisher   ingress.Publisher
	callbacks   CallbackResolver
	breakers    BreakerHealth
	transitions transitionlog.Repository // nil-safe
	idempotency cache.Cache              // nil: idempotency keys are ignored
	now         func() time.Time
}

func NewHandler(
	orders order.Store,
	publisher ingress.Publisher,
	callbacks CallbackResolver,
	breakers BreakerHealth,
	transitions transitionlog.Repository,
	idempotency cache.Cache,
) *Handler {
	return &Handler{
		orders:      orders,
		publisher:   publisher,
		callbacks:   callbacks,
		breakers:    breakers,
		transitions: transitions,
		idempotency: idempotency,
		now:         time.Now,
	}
}

// CreateOrder persists a CREATED order and hands it to the ingress queue.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.ShippingAddress == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "shippingAddress is required")
		return
	}

	o, err := order.New(req.CustomerID, req.ProductID, req.Quantity, req.Amount, order.Address{
		Street:  req.ShippingAddress.Street,
		City:    req.ShippingAddress.City,
		State:   req.ShippingAddress.State,
		ZipCode: req.ShippingAddress.ZipCode,
		Country: req.ShippingAddress.Country,
	}, h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx := r.Context()
	idempKey, _ := ctx.Value(constants.ContextKeyIdempotencyKey).(string)
	requestID, _ := ctx.Value(constants.ContextKeyRequestID).(string)

	slog.InfoContext(ctx, "creating order", "request_id", requestID, "customer_id", o.CustomerID, "order_id", o.ID)

	release := func() {}
	if idempKey != "" && h.idempotency != nil {
		key := h.idempotency.GenerateKey("create_order", idempKey)
		reserved, err := h.idempotency.SetNX(ctx, key, o.ID, idempotencyTTL)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "idempotency cache unavailable, creating without it", "error", err)
		case !reserved:
			h.replay(w, r, key)
			return
		default:
			release = func() {
				if err := h.idempotency.Delete(context.WithoutCancel(ctx), key); err != nil {
					slog.WarnContext(ctx, "failed to release idempotency key", "error", err)
				}
			}
		}
	}

	if err := h.orders.Save(ctx, o); err != nil {
		release()
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	if err := h.publisher.Publish(ctx, o.ID); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue order, cancelling it", "order_id", o.ID, "error", err)
		if cancelErr := o.Cancel("enqueue failed: "+err.Error(), h.now()); cancelErr == nil {
			if saveErr := h.orders.Save(context.WithoutCancel(ctx), o); saveErr != nil {
				slog.ErrorContext(ctx, "CRITICAL: failed to cancel unqueued order", "order_id", o.ID, "error", saveErr)
			}
		}
		release()
		writeError(w, http.StatusServiceUnavailable, "queue_unavailable", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, mapOrderToResponse(o))
}

// replay answers a repeated idempotency key with the order it created.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request, key string) {
	id, err := h.idempotency.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "idempotency_unavailable", err.Error())
		return
	}
	if id == "" {
		writeError(w, http.StatusConflict, "idempotency_conflict", "retry the request")
		return
	}

	o, err := h.orders.Load(r.Context(), id)
	if errors.Is(err, order.ErrNotFound) {
		// The first request reserved the key and has not saved yet.
		writeError(w, http.StatusConflict, "request_in_progress", "an order for this idempotency key is being created")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	w.Header().Set("Idempotent-Replayed", "true")
	writeJSON(w, http.StatusOK, mapOrderToResponse(o))
}

func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order_id_required", "")
		return
	}

	o, err := h.orders.Load(r.Context(), orderID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(o))
}

func (h *Handler) GetCustomerOrders(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")

	orders, err := h.orders.ListByCustomer(r.Context(), customerID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, mapOrderToResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetOrderTransitions returns the audit trail of an order, oldest first.
func (h *Handler) GetOrderTransitions(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if _, err := h.orders.Load(r.Context(), orderID); err != nil {
		writeStoreError(w, err)
		return
	}

	out := []TransitionResponse{}
	if h.transitions != nil {
		entries, err := h.transitions.History(r.Context(), orderID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "transition_log_error", err.Error())
			return
		}
		for _, e := range entries {
			out = append(out, TransitionResponse{
				From:    e.From.String(),
				To:      e.To.String(),
				Step:    e.Step,
				Detail:  e.Detail,
				TraceID: e.TraceID,
				At:      e.At,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) VendorHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.breakers.Snapshot())
}

func mapOrderToResponse(o *order.Order) OrderResponse {
	return OrderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		ProductID:  o.ProductID,
		Quantity:   o.Quantity,
		Amount:     o.Amount,
		ShippingAddress: AddressDTO{
			Street:  o.ShippingAddress.Street,
			City:    o.ShippingAddress.City,
			State:   o.ShippingAddress.State,
			ZipCode: o.ShippingAddress.ZipCode,
			Country: o.ShippingAddress.Country,
		},
		Status:               o.Status.String(),
		FraudScore:           o.FraudScore,
		FraudRecommendation:  o.FraudRecommendation,
		TaxAmount:            o.TaxAmount,
		ShippingCost:         o.ShippingCost,
		TrackingNumber:       o.TrackingNumber,
		TotalAmount:          o.TotalAmount,
		PaymentTransactionID: o.PaymentTransactionID,
		PaymentStatus:        o.PaymentStatus,
		CancelReason:         o.CancelReason,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, order.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "store_error", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
