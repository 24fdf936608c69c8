package resilience

import (
	"log/slog"

	"github.com/sony/gobreaker"
)

// State mirrors the breaker states using the names exposed by the API.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Breaker is one vendor's circuit. gobreaker drives the state machine and the
// half-open probe budget; the trip decision comes from a count-based window
// of the last WindowSize outcomes.
type Breaker struct {
	name   string
	cfg    CircuitConfig
	cb     *gobreaker.TwoStepCircuitBreaker
	window *window
}

func newBreaker(name string, cfg CircuitConfig, logger *slog.Logger) *Breaker {
	cfg = cfg.normalized()
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		window: newWindow(cfg.WindowSize),
	}

	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenProbes,
		// Interval 0 keeps gobreaker from clearing counts on its own; the
		// window is the only failure accounting used for tripping.
		Interval: 0,
		Timeout:  cfg.OpenCooldown,
		ReadyToTrip: func(gobreaker.Counts) bool {
			return b.window.tripped(cfg.MinimumCalls, cfg.FailureRateThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateClosed {
				b.window.reset()
			}
			failures, total := b.window.counts()
			logger.Warn("circuit breaker state changed",
				"vendor", name,
				"from", fromGobreaker(from),
				"to", fromGobreaker(to),
				"window_failures", failures,
				"window_calls", total,
			)
		},
	})

	return b
}

// acquire asks for permission to make one outbound attempt. When granted,
// the returned func must be called exactly once with the attempt's outcome.
// gobreaker.ErrOpenState and gobreaker.ErrTooManyRequests mean the attempt
// must not be made; nothing is recorded in that case.
func (b *Breaker) acquire() (func(failed bool), error) {
	done, err := b.cb.Allow()
	if err != nil {
		return nil, err
	}
	return func(failed bool) {
		// Window first: ReadyToTrip reads it inside done.
		b.window.record(failed)
		if !failed && b.cb.State() == gobreaker.StateClosed &&
			b.window.tripped(b.cfg.MinimumCalls, b.cfg.FailureRateThreshold) {
			// gobreaker consults ReadyToTrip only on a failure. A success that
			// fills the window at the threshold must still open the circuit.
			done(false)
			return
		}
		done(!failed)
	}, nil
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State { return fromGobreaker(b.cb.State()) }

func (b *Breaker) Config() CircuitConfig { return b.cfg }

// Window returns the failures and total outcomes currently in the window.
func (b *Breaker) Window() (failures, total int) { return b.window.counts() }
