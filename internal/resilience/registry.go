package resilience

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry owns one Breaker per vendor name. Breakers are shared by every
// Caller (and so every order) using that name.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		logger:   logger,
	}
}

// GetOrCreate returns the breaker registered under name, creating it with cfg
// on first use. Later calls keep the original configuration.
func (r *Registry) GetOrCreate(name string, cfg CircuitConfig) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	b := newBreaker(name, cfg, r.logger)
	r.breakers[name] = b
	r.logger.Info("created circuit breaker", "vendor", name, "window", b.cfg.WindowSize,
		"threshold", b.cfg.FailureRateThreshold, "cooldown", b.cfg.OpenCooldown)
	return b
}

func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	return b, ok
}

// BreakerStatus is a point-in-time view of one breaker.
type BreakerStatus struct {
	Name           string `json:"name"`
	State          State  `json:"state"`
	WindowCalls    int    `json:"windowCalls"`
	WindowFailures int    `json:"windowFailures"`
}

// Snapshot lists every breaker, sorted by name.
func (r *Registry) Snapshot() []BreakerStatus {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]BreakerStatus, 0, len(breakers))
	for _, b := range breakers {
		failures, total := b.Window()
		out = append(out, BreakerStatus{
			Name:           b.Name(),
			State:          b.State(),
			WindowCalls:    total,
			WindowFailures: failures,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
