package resilience

import (
	"math"
	"time"
)

// RetryPolicy bounds how often and how fast a failing call is repeated.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, first one included.
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	// MaxDelay caps a single pause. Zero means uncapped.
	MaxDelay time.Duration
	// Jitter stretches each pause by up to this fraction. It is clamped to
	// Multiplier-1 so pauses never shrink from one retry to the next.
	Jitter float64
	// Retryable classifies failures. Nil means DefaultRetryable.
	Retryable func(error) bool
}

// Delay returns the pause before retry number retry (1 is the pause between
// the first and second attempts). r is a random value in [0, 1).
func (p RetryPolicy) Delay(retry int, r float64) time.Duration {
	if retry < 1 || p.BaseDelay <= 0 {
		return 0
	}

	mult := math.Max(p.Multiplier, 1)
	jitter := math.Min(math.Max(p.Jitter, 0), mult-1)
	r = math.Min(math.Max(r, 0), 1)

	d := float64(p.BaseDelay) * math.Pow(mult, float64(retry-1)) * (1 + jitter*r)

	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Retryable == nil {
		p.Retryable = DefaultRetryable
	}
	return p
}

// CircuitConfig configures a count-based breaker.
type CircuitConfig struct {
	// WindowSize is how many recent outcomes the failure rate is computed over.
	WindowSize int
	// MinimumCalls is the number of outcomes needed before the breaker may
	// trip. Zero means WindowSize.
	MinimumCalls         int
	FailureRateThreshold float64
	// OpenCooldown is how long the breaker stays OPEN before admitting probes.
	OpenCooldown time.Duration
	// HalfOpenProbes is both the number of probes admitted while HALF_OPEN
	// and the consecutive successes needed to close again.
	HalfOpenProbes uint32
}

func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		WindowSize:           10,
		MinimumCalls:         10,
		FailureRateThreshold: 0.5,
		OpenCooldown:         30 * time.Second,
		HalfOpenProbes:       3,
	}
}

func (c CircuitConfig) normalized() CircuitConfig {
	def := DefaultCircuitConfig()
	if c.WindowSize < 1 {
		c.WindowSize = def.WindowSize
	}
	if c.MinimumCalls < 1 || c.MinimumCalls > c.WindowSize {
		c.MinimumCalls = c.WindowSize
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		c.FailureRateThreshold = def.FailureRateThreshold
	}
	if c.OpenCooldown <= 0 {
		c.OpenCooldown = def.OpenCooldown
	}
	if c.HalfOpenProbes < 1 {
		c.HalfOpenProbes = def.HalfOpenProbes
	}
	return c
}

// Policy is the full per-vendor configuration of a Caller.
type Policy struct {
	Name string
	// Timeout bounds every single attempt. Zero disables the bound.
	Timeout time.Duration
	Retry   RetryPolicy
	Circuit CircuitConfig

	// RejectionTripsCircuit counts business rejections as breaker failures.
	RejectionTripsCircuit bool
	// FallbackOnRejection turns a business rejection into FallbackUsed.
	FallbackOnRejection bool
}
