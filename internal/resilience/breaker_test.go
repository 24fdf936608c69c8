package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callN(c *Caller[string, quote], n int) []Result[quote] {
	out := make([]Result[quote], 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.Call(context.Background(), "a"))
	}
	return out
}

func TestBreaker_OpensAtHalfFailuresOverWindow(t *testing.T) {
	v := &fakeVendor{}
	c, _ := newTestCaller(t, v, testPolicy(1))

	v.set(nil)
	callN(c, 5)
	v.set(errVendorDown)
	callN(c, 4)
	assert.Equal(t, StateClosed, c.Breaker().State(), "nine outcomes are below the window size")

	callN(c, 1)
	require.Equal(t, StateOpen, c.Breaker().State(), "5 of the last 10 failed")

	before := v.calls.Load()
	for _, res := range callN(c, 20) {
		assert.Equal(t, FallbackUsed, res.Outcome)
		assert.Equal(t, 0, res.Attempts)
	}
	assert.Equal(t, before, v.calls.Load(), "no outbound call while OPEN")

	failures, total := c.Breaker().Window()
	assert.Equal(t, 5, failures)
	assert.Equal(t, 10, total, "short-circuited calls never enter the window")
}

func TestBreaker_OpensWhenSuccessFillsWindowAtThreshold(t *testing.T) {
	v := &fakeVendor{}
	c, _ := newTestCaller(t, v, testPolicy(1))

	v.set(errVendorDown)
	callN(c, 5)
	v.set(nil)
	callN(c, 4)
	assert.Equal(t, StateClosed, c.Breaker().State())

	callN(c, 1)
	require.Equal(t, StateOpen, c.Breaker().State(), "5 of the last 10 failed")

	calls := v.calls.Load()
	res := c.Call(context.Background(), "a")
	assert.Equal(t, FallbackUsed, res.Outcome)
	assert.Zero(t, res.Attempts)
	assert.Equal(t, calls, v.calls.Load(), "no outbound call once open")
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	v := &fakeVendor{}
	c, _ := newTestCaller(t, v, testPolicy(1))

	v.set(errVendorDown)
	callN(c, 4)
	v.set(nil)
	callN(c, 6)
	assert.Equal(t, StateClosed, c.Breaker().State())

	// The window slides: the four failures age out.
	callN(c, 10)
	failures, total := c.Breaker().Window()
	assert.Zero(t, failures)
	assert.Equal(t, 10, total)
}

func tripBreaker(t *testing.T, v *fakeVendor, c *Caller[string, quote]) {
	t.Helper()
	v.set(errVendorDown)
	callN(c, 10)
	require.Equal(t, StateOpen, c.Breaker().State())
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	v := &fakeVendor{}
	c, _ := newTestCaller(t, v, testPolicy(1))
	tripBreaker(t, v, c)

	require.Eventually(t, func() bool {
		return c.Breaker().State() == StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	v.set(nil)
	for i, res := range callN(c, 2) {
		assert.Equalf(t, Success, res.Outcome, "probe %d", i)
		assert.Equal(t, StateHalfOpen, c.Breaker().State())
	}

	res := c.Call(context.Background(), "a")
	assert.Equal(t, Success, res.Outcome)
	assert.Equal(t, StateClosed, c.Breaker().State())

	failures, total := c.Breaker().Window()
	assert.Zero(t, failures)
	assert.Zero(t, total, "window starts empty after closing")
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	v := &fakeVendor{}
	c, _ := newTestCaller(t, v, testPolicy(1))
	tripBreaker(t, v, c)

	require.Eventually(t, func() bool {
		return c.Breaker().State() == StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	v.set(nil, errVendorDown)
	assert.Equal(t, Success, c.Call(context.Background(), "a").Outcome)
	assert.Equal(t, FallbackUsed, c.Call(context.Background(), "a").Outcome)
	assert.Equal(t, StateOpen, c.Breaker().State())

	calls := v.calls.Load()
	assert.Equal(t, FallbackUsed, c.Call(context.Background(), "a").Outcome)
	assert.Equal(t, calls, v.calls.Load())
}

func TestBreaker_HalfOpenAdmitsLimitedProbes(t *testing.T) {
	release := make(chan struct{})
	var (
		calls   atomic.Int32
		failing atomic.Bool
	)
	failing.Store(true)

	attempt := func(ctx context.Context, req string) (quote, error) {
		calls.Add(1)
		if failing.Load() {
			return quote{}, errVendorDown
		}
		<-release
		return quote{Value: req, Source: "vendor"}, nil
	}

	c := NewCaller(NewRegistry(quietLogger()), testPolicy(1), attempt, fallbackQuote, WithLogger(quietLogger()))
	callN(c, 10)
	require.Equal(t, StateOpen, c.Breaker().State())

	require.Eventually(t, func() bool {
		return c.Breaker().State() == StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	failing.Store(false)
	calls.Store(0)

	var wg sync.WaitGroup
	results := make([]Result[quote], 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Call(context.Background(), "probe")
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)

	extra := c.Call(context.Background(), "extra")
	assert.Equal(t, FallbackUsed, extra.Outcome)
	assert.Equal(t, 0, extra.Attempts)
	assert.EqualValues(t, 3, calls.Load())

	close(release)
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, Success, res.Outcome)
	}
	assert.Equal(t, StateClosed, c.Breaker().State())
}

func TestBreaker_OpenMidRetryStopsAttempts(t *testing.T) {
	v := &fakeVendor{}
	c, rec := newTestCaller(t, v, testPolicy(3))

	v.set(nil)
	callN(c, 5)
	v.set(errVendorDown)
	callN(c, 1) // three failed attempts, window 5 ok / 3 failed
	require.Equal(t, StateClosed, c.Breaker().State())

	v.set(errVendorDown)
	rec.delays = nil
	res := c.Call(context.Background(), "a")

	// Second attempt fills the window to 10 with 5 failures and trips it;
	// the third attempt is short-circuited.
	assert.Equal(t, FallbackUsed, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.EqualValues(t, 2, v.calls.Load())
	assert.Equal(t, StateOpen, c.Breaker().State())
}

func TestRegistry_SharesBreakersByName(t *testing.T) {
	reg := NewRegistry(quietLogger())
	v := &fakeVendor{script: []error{errVendorDown}}

	a := NewCaller(reg, testPolicy(1), v.attempt, fallbackQuote, WithLogger(quietLogger()))
	b := NewCaller(reg, testPolicy(1), v.attempt, fallbackQuote, WithLogger(quietLogger()))
	require.Same(t, a.Breaker(), b.Breaker())

	callN(a, 10)
	assert.Equal(t, FallbackUsed, b.Call(context.Background(), "a").Outcome)
	assert.EqualValues(t, 10, v.calls.Load())

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "quotes", snap[0].Name)
	assert.Equal(t, StateOpen, snap[0].State)
	assert.Equal(t, 10, snap[0].WindowFailures)

	_, ok := reg.Get("missing")
	assert.False(t, ok)
}

func TestWindow_Slides(t *testing.T) {
	w := newWindow(3)

	w.record(true)
	w.record(true)
	w.record(false)
	f, n := w.counts()
	assert.Equal(t, 2, f)
	assert.Equal(t, 3, n)
	assert.True(t, w.tripped(3, 0.5))

	w.record(false)
	w.record(false)
	f, n = w.counts()
	assert.Equal(t, 0, f)
	assert.Equal(t, 3, n)
	assert.False(t, w.tripped(3, 0.5))

	w.reset()
	f, n = w.counts()
	assert.Zero(t, f)
	assert.Zero(t, n)
	assert.False(t, w.tripped(1, 0.5))
}
