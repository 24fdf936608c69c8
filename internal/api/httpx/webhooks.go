package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jcmexdev/vendor-orchestration/internal/callback"
	"github.com/jcmexdev/vendor-orchestration/internal/lock"
)

// retryAfterSeconds is sent with 409 and 503 answers so vendors redeliver.
const retryAfterSeconds = "5"

// PaymentWebhook feeds an asynchronous payment result to the correlator.
// Duplicates and stale callbacks answer 200 so the vendor stops retrying.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req PaymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	ctx := r.Context()
	slog.InfoContext(ctx, "payment webhook received",
		"order_id", req.OrderID,
		"transaction_id", req.TransactionID,
		"status", req.Status,
	)

	outcome, err := h.callbacks.Resolve(ctx, req.OrderID, req.TransactionID, req.Status)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, WebhookResponse{Outcome: string(outcome)})
	case errors.Is(err, callback.ErrInvalidCallback):
		writeError(w, http.StatusBadRequest, "invalid_callback", err.Error())
	case errors.Is(err, callback.ErrNotYetResolvable):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusConflict, "not_yet_resolvable", err.Error())
	case errors.Is(err, lock.ErrLockBusy):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, "order_busy", err.Error())
	default:
		slog.ErrorContext(ctx, "payment webhook failed", "order_id", req.OrderID, "error", err)
		writeError(w, http.StatusInternalServerError, "callback_error", err.Error())
	}
}

// FraudWebhook acknowledges fraud callbacks. Fraud checks are synchronous
// here, so the body is only logged.
func (h *Handler) FraudWebhook(w http.ResponseWriter, r *http.Request) {
	var req FraudWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	slog.InfoContext(r.Context(), "fraud webhook received",
		"order_id", req.OrderID,
		"check_id", req.CheckID,
		"score", req.Score,
		"recommendation", req.Recommendation,
	)
	writeJSON(w, http.StatusOK, WebhookResponse{Outcome: string(callback.OutcomeIgnored)})
}
