// Package simulator serves mock fraud, tax, shipping and payment APIs for
// local runs and end-to-end tests. It can inject failures and latency, and
// can answer payments asynchronously through the caller's webhook.
package simulator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type Config struct {
	// FailureRate is the share of requests answered with 503.
	FailureRate float64
	// Latency is added to every request.
	Latency time.Duration
	// PaymentSuccessRate is the share of charges that succeed.
	PaymentSuccessRate float64
	// AsyncPayments answers charges with PENDING and reports the final status
	// to the request's callbackUrl after CallbackDelay.
	AsyncPayments bool
	CallbackDelay time.Duration
	// APIKey, when set, must match the X-API-Key header.
	APIKey string
}

func DefaultConfig() Config {
	return Config{
		PaymentSuccessRate: 0.8,
		CallbackDelay:      2 * time.Second,
	}
}

type Option func(*Simulator)

// WithRandom replaces the source of randomness; fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(s *Simulator) { s.random = fn }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(s *Simulator) { s.hc = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

type Simulator struct {
	cfg    Config
	random func() float64
	hc     *http.Client
	logger *slog.Logger

	// ctx bounds background callbacks; cancelled by Shutdown.
	ctx       context.Context
	cancel    context.CancelFunc
	callbacks sync.WaitGroup
}

func New(cfg Config, opts ...Option) *Simulator {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Simulator{
		cfg:    cfg,
		random: rand.Float64,
		hc:     &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes mounts the four vendor APIs under /fraud-api, /tax-api,
// /shipping-api and /payment-api.
func (s *Simulator) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.chaos)

		r.Post("/fraud-api/check", s.checkFraud)
		r.Post("/tax-api/calculate", s.calculateTax)
		r.Post("/shipping-api/rates", s.calculateShipping)
		r.Post("/payment-api/charge", s.charge)
	})
	return r
}

// Shutdown cancels pending callbacks and waits for them to return.
func (s *Simulator) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.callbacks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-API-Key") != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// chaos delays the request and fails a share of them with 503.
func (s *Simulator) chaos(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Latency > 0 {
			t := time.NewTimer(s.cfg.Latency)
			select {
			case <-t.C:
			case <-r.Context().Done():
				t.Stop()
				return
			}
		}
		if s.cfg.FailureRate > 0 && s.random() < s.cfg.FailureRate {
			s.logger.InfoContext(r.Context(), "injecting vendor failure", "path", r.URL.Path)
			writeError(w, http.StatusServiceUnavailable, "simulated outage")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func shortID(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}
