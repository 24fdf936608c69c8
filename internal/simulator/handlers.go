package simulator

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/vendor-orchestration/internal/vendor"
)

var (
	stateTaxRates = map[string]decimal.Decimal{
		"CA": decimal.RequireFromString("0.0725"),
		"NY": decimal.RequireFromString("0.0800"),
		"TX": decimal.RequireFromString("0.0625"),
		"FL": decimal.RequireFromString("0.0600"),
	}
	defaultTaxRate = decimal.RequireFromString("0.0700")

	shippingRates = map[string]decimal.Decimal{
		vendor.ServiceExpress:   decimal.RequireFromString("24.99"),
		vendor.ServiceOvernight: decimal.RequireFromString("39.99"),
	}
	defaultShippingRate = decimal.RequireFromString("9.99")
)

func (s *Simulator) checkFraud(w http.ResponseWriter, r *http.Request) {
	var req vendor.FraudCheckRequest
	if !decode(w, r, &req) {
		return
	}

	score := s.random()
	resp := vendor.FraudCheckResponse{Score: score, CheckID: shortID("FRAUD")}
	switch {
	case score < 0.3:
		resp.RiskLevel, resp.Recommendation = "LOW", vendor.RecommendationApprove
	case score < 0.7:
		resp.RiskLevel, resp.Recommendation = "MEDIUM", vendor.RecommendationReview
	default:
		resp.RiskLevel, resp.Recommendation = "HIGH", vendor.RecommendationDecline
	}

	s.logger.InfoContext(r.Context(), "fraud check", "order_id", req.OrderID, "score", score, "recommendation", resp.Recommendation)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Simulator) calculateTax(w http.ResponseWriter, r *http.Request) {
	var req vendor.TaxRequest
	if !decode(w, r, &req) {
		return
	}

	rate, ok := stateTaxRates[req.Address.State]
	if !ok {
		rate = defaultTaxRate
	}
	resp := vendor.TaxResponse{
		TaxAmount:    req.Amount.Mul(rate),
		TaxRate:      rate,
		Jurisdiction: req.Address.State,
	}

	s.logger.InfoContext(r.Context(), "tax calculated", "order_id", req.OrderID, "tax", resp.TaxAmount.String(), "rate", rate.String())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Simulator) calculateShipping(w http.ResponseWriter, r *http.Request) {
	var req vendor.ShippingRequest
	if !decode(w, r, &req) {
		return
	}

	cost, ok := shippingRates[req.ServiceType]
	if !ok {
		cost = defaultShippingRate
	}
	days := 5
	if req.ServiceType == vendor.ServiceExpress {
		days = 2
	}
	resp := vendor.ShippingResponse{
		Cost:           cost,
		TrackingNumber: shortID("TRACK"),
		EstimatedDays:  days,
		Carrier:        "MOCK_CARRIER",
	}

	s.logger.InfoContext(r.Context(), "shipping rated", "order_id", req.OrderID, "cost", cost.String())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Simulator) charge(w http.ResponseWriter, r *http.Request) {
	var req vendor.PaymentRequest
	if !decode(w, r, &req) {
		return
	}

	txID := shortID("TXN")
	status, message := vendor.PaymentFailed, "Insufficient funds"
	if s.random() < s.cfg.PaymentSuccessRate {
		status, message = vendor.PaymentSuccess, "Payment processed successfully"
	}

	if s.cfg.AsyncPayments && req.CallbackURL != "" {
		s.scheduleCallback(req.CallbackURL, vendor.PaymentCallback{
			OrderID:       req.OrderID,
			TransactionID: txID,
			Status:        status,
		})
		status, message = vendor.PaymentPending, "Payment accepted for processing"
	}

	s.logger.InfoContext(r.Context(), "payment charged", "order_id", req.OrderID, "transaction_id", txID, "status", status)
	writeJSON(w, http.StatusOK, vendor.PaymentResponse{
		TransactionID: txID,
		Status:        status,
		Message:       message,
		Timestamp:     time.Now().UTC(),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
