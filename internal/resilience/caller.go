// Package resilience wraps outbound vendor calls with a per-attempt timeout,
// bounded retry with exponential backoff and a shared circuit breaker. A
// Caller never returns an error: every call ends as Success, FallbackUsed or
// Rejected.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jcmexdev/vendor-orchestration/internal/resilience"

// AttemptFunc performs one outbound attempt.
type AttemptFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// FallbackFunc builds the default payload substituted for a failed call.
type FallbackFunc[Req, Resp any] func(req Req) Resp

type options struct {
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSleep replaces the pause between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

// WithRandom replaces the jitter source; fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(o *options) { o.random = fn }
}

// Caller is the resilient wrapper for one vendor operation.
type Caller[Req, Resp any] struct {
	policy   Policy
	breaker  *Breaker
	attempt  AttemptFunc[Req, Resp]
	fallback FallbackFunc[Req, Resp]
	opts     options
}

// NewCaller builds a Caller whose breaker is looked up (or created) in reg
// under policy.Name.
func NewCaller[Req, Resp any](
	reg *Registry,
	policy Policy,
	attempt AttemptFunc[Req, Resp],
	fallback FallbackFunc[Req, Resp],
	opts ...Option,
) *Caller[Req, Resp] {
	o := options{
		logger: slog.Default(),
		sleep:  sleepWithContext,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(&o)
	}

	policy.Retry = policy.Retry.normalized()
	policy.Circuit = policy.Circuit.normalized()

	return &Caller[Req, Resp]{
		policy:   policy,
		breaker:  reg.GetOrCreate(policy.Name, policy.Circuit),
		attempt:  attempt,
		fallback: fallback,
		opts:     o,
	}
}

func (c *Caller[Req, Resp]) Policy() Policy { return c.policy }

func (c *Caller[Req, Resp]) Breaker() *Breaker { return c.breaker }

// Call runs req through the breaker and retry loop.
func (c *Caller[Req, Resp]) Call(ctx context.Context, req Req) Result[Resp] {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "vendor."+c.policy.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("vendor", c.policy.Name)),
	)
	defer span.End()

	res := c.call(ctx, req)

	span.SetAttributes(
		attribute.String("vendor.outcome", res.Outcome.String()),
		attribute.Int("vendor.attempts", res.Attempts),
	)
	if res.Cause != nil {
		span.RecordError(res.Cause)
	}
	if res.Outcome == FallbackUsed {
		span.SetStatus(codes.Error, "fallback used")
	}
	return res
}

func (c *Caller[Req, Resp]) call(ctx context.Context, req Req) Result[Resp] {
	retry := c.policy.Retry
	log := c.opts.logger.With("vendor", c.policy.Name)

	var (
		lastErr  error
		attempts int
	)

	for attempts < retry.MaxAttempts {
		if attempts > 0 {
			delay := retry.Delay(attempts, c.opts.random())
			if err := c.opts.sleep(ctx, delay); err != nil {
				return c.degrade(ctx, req, attempts, errors.Join(lastErr, err))
			}
		}
		if err := ctx.Err(); err != nil {
			return c.degrade(ctx, req, attempts, errors.Join(lastErr, err))
		}

		done, err := c.breaker.acquire()
		if err != nil {
			log.InfoContext(ctx, "circuit not admitting calls", "state", c.breaker.State(), "attempts", attempts)
			return c.degrade(ctx, req, attempts, errors.Join(lastErr, fmt.Errorf("%s: %w", c.policy.Name, err)))
		}

		attempts++
		resp, err := c.do(ctx, req)

		if err == nil {
			done(false)
			return Result[Resp]{Value: resp, Outcome: Success, Attempts: attempts}
		}

		if ctx.Err() != nil {
			// The caller gave up; the vendor is not to blame.
			done(false)
			return c.degrade(ctx, req, attempts, errors.Join(err, ctx.Err()))
		}

		if rej, ok := AsRejection(err); ok {
			done(c.policy.RejectionTripsCircuit)
			if c.policy.FallbackOnRejection {
				return c.degrade(ctx, req, attempts, err)
			}
			log.InfoContext(ctx, "vendor rejected request", "reason", rej.Reason)
			return Result[Resp]{Value: resp, Outcome: Rejected, Reason: rej.Reason, Attempts: attempts, Cause: err}
		}

		done(true)
		lastErr = err

		if !retry.Retryable(err) {
			log.WarnContext(ctx, "non-retryable vendor failure", "attempt", attempts, "error", err)
			break
		}
		log.WarnContext(ctx, "vendor attempt failed", "attempt", attempts, "max_attempts", retry.MaxAttempts, "error", err)
	}

	return c.degrade(ctx, req, attempts, lastErr)
}

// do runs one attempt under the per-attempt deadline. The attempt goroutine
// writes to a buffered channel so it can always finish, even after the
// deadline fired and nobody is reading.
func (c *Caller[Req, Resp]) do(ctx context.Context, req Req) (Resp, error) {
	if c.policy.Timeout <= 0 {
		return c.attempt(ctx, req)
	}

	actx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()

	type result struct {
		resp Resp
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := c.attempt(actx, req)
		ch <- result{resp: resp, err: err}
	}()

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-actx.Done():
		var zero Resp
		return zero, fmt.Errorf("%s: attempt timed out after %s: %w", c.policy.Name, c.policy.Timeout, actx.Err())
	}
}

func (c *Caller[Req, Resp]) degrade(ctx context.Context, req Req, attempts int, cause error) Result[Resp] {
	c.opts.logger.WarnContext(ctx, "vendor call degraded to fallback",
		"vendor", c.policy.Name,
		"attempts", attempts,
		"error", cause,
	)

	var value Resp
	if c.fallback != nil {
		value = c.fallback(req)
	}
	return Result[Resp]{Value: value, Outcome: FallbackUsed, Attempts: attempts, Cause: cause}
}

// sleepWithContext sleeps for d unless ctx is done first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
