package simulator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jcmexdev/vendor-orchestration/internal/vendor"
)

const maxCallbackAttempts = 5

var errCallbackRefused = errors.New("webhook refused callback")

// scheduleCallback reports the final payment status after CallbackDelay.
// 409 and 5xx answers are retried, honouring Retry-After.
func (s *Simulator) scheduleCallback(url string, cb vendor.PaymentCallback) {
	s.callbacks.Add(1)
	go func() {
		defer s.callbacks.Done()

		delay := s.cfg.CallbackDelay
		for attempt := 1; attempt <= maxCallbackAttempts; attempt++ {
			if !s.wait(delay) {
				return
			}

			retryAfter, err := s.deliver(url, cb)
			if err == nil {
				s.logger.Info("payment callback delivered", "order_id", cb.OrderID, "status", cb.Status, "attempt", attempt)
				return
			}
			if errors.Is(err, errCallbackRefused) {
				s.logger.Warn("payment callback refused", "order_id", cb.OrderID, "error", err)
				return
			}
			s.logger.Warn("payment callback failed", "order_id", cb.OrderID, "attempt", attempt, "error", err)
			delay = retryAfter
		}
		s.logger.Error("payment callback abandoned", "order_id", cb.OrderID, "transaction_id", cb.TransactionID)
	}()
}

func (s *Simulator) wait(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// deliver posts cb once. On a retryable failure it returns how long to wait.
func (s *Simulator) deliver(url string, cb vendor.PaymentCallback) (time.Duration, error) {
	body, err := json.Marshal(cb)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return time.Second, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return 0, nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode >= 500:
		wait := time.Second
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
		return wait, fmt.Errorf("webhook answered %d", resp.StatusCode)
	default:
		return 0, fmt.Errorf("%w: status %d", errCallbackRefused, resp.StatusCode)
	}
}
