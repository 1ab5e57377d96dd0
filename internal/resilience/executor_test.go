package resilience_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

var testIdentity = model.ProviderIdentity{
	TenantID: "acme",
	Domain:   model.DomainCRM,
	Vendor:   "stub",
	AuthMode: model.AuthModeAPIKey,
}

func newExecutor(clock clockwork.Clock, limit model.RateLimit, policy resilience.Policy) *resilience.Executor {
	return resilience.NewExecutor(resilience.ExecutorConfig{
		Identity: testIdentity,
		Policy:   policy,
		Window:   resilience.NewWindow(limit, clock),
		Clock:    clock,
	})
}

func steadyPolicy() resilience.Policy {
	p := resilience.DefaultPolicy()
	p.BaseDelay = time.Second
	p.MaxDelay = 8 * time.Second
	p.JitterFraction = 0
	return p
}

type result struct {
	value string
	err   error
}

// advanceWhenSleeping waits for the executor to park on the clock, then moves
// time forward by d.
func advanceWhenSleeping(t *testing.T, clock *clockwork.FakeClock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(d)
}

func TestDo_RateLimitWithRetryAfterThenSuccess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ex := newExecutor(clock, model.RateLimit{}, steadyPolicy())

	var calls atomic.Int32
	var secondCallAt time.Time
	start := clock.Now()

	done := make(chan result, 1)
	go func() {
		v, err := resilience.Do(context.Background(), ex, "create_contact", func(context.Context) (string, error) {
			if calls.Add(1) == 1 {
				return "", &model.NormalizedError{Kind: model.KindRateLimit, RetryAfter: 5 * time.Second, VendorStatusCode: 429}
			}
			secondCallAt = clock.Now()
			return "ok", nil
		})
		done <- result{v, err}
	}()

	advanceWhenSleeping(t, clock, 5*time.Second)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "ok", res.value)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, secondCallAt.Sub(start), 5*time.Second)
}

func TestDo_AuthenticationIsNeverRetried(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := steadyPolicy()
	policy.MaxAttempts = 10
	ex := newExecutor(clock, model.RateLimit{}, policy)

	var calls atomic.Int32
	_, err := resilience.Do(context.Background(), ex, "create_contact", func(context.Context) (string, error) {
		calls.Add(1)
		return "", &model.NormalizedError{Kind: model.KindAuthentication, VendorStatusCode: 401}
	})

	require.Error(t, err)
	ne, ok := model.AsNormalized(err)
	require.True(t, ok)
	assert.Equal(t, model.KindAuthentication, ne.Kind)
	assert.Equal(t, 1, ne.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_TerminalKindsAreNotRetried(t *testing.T) {
	for _, kind := range []model.ErrorKind{
		model.KindValidation, model.KindNotFound, model.KindConflict, model.KindUnknown,
	} {
		t.Run(string(kind), func(t *testing.T) {
			ex := newExecutor(clockwork.NewFakeClock(), model.RateLimit{}, steadyPolicy())
			var calls int
			err := resilience.Run(context.Background(), ex, "op", func(context.Context) error {
				calls++
				return &model.NormalizedError{Kind: kind}
			})
			assert.True(t, model.IsKind(err, kind))
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ex := newExecutor(clock, model.RateLimit{}, steadyPolicy())

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- resilience.Run(context.Background(), ex, "send", func(context.Context) error {
			calls.Add(1)
			return &model.NormalizedError{Kind: model.KindServerError, VendorStatusCode: 502}
		})
	}()

	advanceWhenSleeping(t, clock, time.Second)
	advanceWhenSleeping(t, clock, 2*time.Second)

	err := <-done
	ne, ok := model.AsNormalized(err)
	require.True(t, ok)
	assert.Equal(t, model.KindServerError, ne.Kind)
	assert.Equal(t, 3, ne.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_UnclassifiedErrorsBecomeNormalized(t *testing.T) {
	ex := newExecutor(clockwork.NewFakeClock(), model.RateLimit{}, steadyPolicy())

	err := resilience.Run(context.Background(), ex, "op", func(context.Context) error {
		return errors.New("something odd")
	})

	ne, ok := model.AsNormalized(err)
	require.True(t, ok)
	assert.Equal(t, model.KindUnknown, ne.Kind)
	assert.Equal(t, 1, ne.Attempts)
}

func TestDo_ConfigurationErrorPassesThrough(t *testing.T) {
	ex := newExecutor(clockwork.NewFakeClock(), model.RateLimit{}, steadyPolicy())
	cfgErr := &model.ConfigurationError{Reason: model.ErrInvalidConfig}

	var calls int
	err := resilience.Run(context.Background(), ex, "op", func(context.Context) error {
		calls++
		return cfgErr
	})

	assert.Same(t, cfgErr, err)
	assert.Equal(t, 1, calls)
}

func TestDo_AbortsWhenBackoffWouldPassDeadline(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	ex := newExecutor(clock, model.RateLimit{}, steadyPolicy())

	ctx, cancel := context.WithDeadline(context.Background(), clock.Now().Add(200*time.Millisecond))
	defer cancel()

	var calls int
	err := resilience.Run(ctx, ex, "op", func(context.Context) error {
		calls++
		return &model.NormalizedError{Kind: model.KindRateLimit, RetryAfter: time.Minute}
	})

	ne, ok := model.AsNormalized(err)
	require.True(t, ok)
	assert.Equal(t, model.KindNetwork, ne.Kind)
	assert.Contains(t, ne.Message, "deadline exceeded")
	assert.Equal(t, 1, ne.Attempts)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_AbortsWhenAdmissionWaitWouldPassDeadline(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	ex := newExecutor(clock, model.RateLimit{MaxRequests: 1, Window: 10 * time.Second}, steadyPolicy())

	require.NoError(t, resilience.Run(context.Background(), ex, "op", func(context.Context) error { return nil }))

	ctx, cancel := context.WithDeadline(context.Background(), clock.Now().Add(time.Second))
	defer cancel()

	var calls int
	err := resilience.Run(ctx, ex, "op", func(context.Context) error {
		calls++
		return nil
	})

	assert.True(t, model.IsKind(err, model.KindNetwork))
	assert.Zero(t, calls, "call must not run without admission")
}

func TestDo_DeadlineIsMeasuredOnExecutorClock(t *testing.T) {
	// The executor clock runs an hour ahead of wall time, so only one hour of
	// the two-hour deadline remains by its reckoning.
	clock := clockwork.NewFakeClockAt(time.Now().Add(time.Hour))
	ex := newExecutor(clock, model.RateLimit{}, steadyPolicy())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(2*time.Hour))
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- resilience.Run(ctx, ex, "op", func(context.Context) error {
			return &model.NormalizedError{Kind: model.KindRateLimit, RetryAfter: 90 * time.Minute}
		})
	}()

	select {
	case err := <-done:
		ne, ok := model.AsNormalized(err)
		require.True(t, ok)
		assert.Contains(t, ne.Message, "deadline exceeded")
		assert.Equal(t, 1, ne.Attempts)
	case <-time.After(5 * time.Second):
		t.Fatal("executor slept instead of aborting")
	}
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ex := newExecutor(clock, model.RateLimit{}, steadyPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- resilience.Run(ctx, ex, "op", func(context.Context) error {
			return &model.NormalizedError{Kind: model.KindNetwork}
		})
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	err := <-done
	ne, ok := model.AsNormalized(err)
	require.True(t, ok)
	assert.Equal(t, model.KindNetwork, ne.Kind)
	assert.Contains(t, ne.Message, "canceled")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_WaitsForAdmission(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ex := newExecutor(clock, model.RateLimit{MaxRequests: 1, Window: 10 * time.Second}, steadyPolicy())

	require.NoError(t, resilience.Run(context.Background(), ex, "op", func(context.Context) error { return nil }))

	var ranAt time.Time
	start := clock.Now()
	done := make(chan error, 1)
	go func() {
		done <- resilience.Run(context.Background(), ex, "op", func(context.Context) error {
			ranAt = clock.Now()
			return nil
		})
	}()

	advanceWhenSleeping(t, clock, 10*time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, 10*time.Second, ranAt.Sub(start))
}

func TestPolicy_BackoffIsNonDecreasingUpToMax(t *testing.T) {
	p := steadyPolicy()
	bo := p.NewBackOff(clockwork.NewFakeClock())

	var prev time.Duration
	for i := range 8 {
		d := bo.NextBackOff()
		assert.GreaterOrEqual(t, d, prev, "delay %d", i)
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
	assert.Equal(t, p.MaxDelay, prev)
}

func TestPolicy_JitteredBackoffIsNonDecreasingUpToMax(t *testing.T) {
	for _, jitter := range []float64{0.2, 0.6, 1} {
		p := resilience.Policy{MaxAttempts: 12, BaseDelay: 500 * time.Millisecond, MaxDelay: 4 * time.Second, JitterFraction: jitter}
		for run := range 200 {
			bo := p.NewBackOff(clockwork.NewFakeClock())
			var prev time.Duration
			for i := range 11 {
				d := bo.NextBackOff()
				require.GreaterOrEqual(t, d, prev, "jitter %.1f run %d delay %d", jitter, run, i)
				require.LessOrEqual(t, d, p.MaxDelay, "jitter %.1f run %d delay %d", jitter, run, i)
				prev = d
			}
		}
	}
}

func TestDo_RetryDelaysNeverDecrease(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := resilience.DefaultPolicy()
	policy.MaxAttempts = 10
	policy.MaxDelay = 4 * time.Second
	rec := &delayRecorder{}
	ex := resilience.NewExecutor(resilience.ExecutorConfig{
		Identity: testIdentity,
		Policy:   policy,
		Window:   resilience.NewWindow(model.RateLimit{}, clock),
		Clock:    clock,
		Observer: rec,
	})

	done := make(chan error, 1)
	go func() {
		done <- resilience.Run(context.Background(), ex, "op", func(context.Context) error {
			return &model.NormalizedError{Kind: model.KindServerError}
		})
	}()
	for range policy.MaxAttempts - 1 {
		advanceWhenSleeping(t, clock, policy.MaxDelay)
	}

	err := <-done
	assert.True(t, model.IsKind(err, model.KindServerError))
	delays := rec.delays()
	require.Len(t, delays, policy.MaxAttempts-1)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
		assert.LessOrEqual(t, delays[i], policy.MaxDelay)
	}
}

type delayRecorder struct {
	mu  sync.Mutex
	got []time.Duration
}

func (r *delayRecorder) AttemptFinished(model.ProviderIdentity, string, time.Duration, error) {}

func (r *delayRecorder) RateLimited(model.ProviderIdentity, time.Duration) {}

func (r *delayRecorder) RetryScheduled(_ model.ProviderIdentity, _ string, _ model.ErrorKind, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, delay)
}

func (r *delayRecorder) delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.got)
}

func TestPolicy_JitterStaysWithinFraction(t *testing.T) {
	p := resilience.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, JitterFraction: 0.25}
	for range 50 {
		d := p.NewBackOff(clockwork.NewFakeClock()).NextBackOff()
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestPolicy_DefaultRetryableKinds(t *testing.T) {
	p := resilience.DefaultPolicy()
	assert.True(t, p.Retryable(model.KindRateLimit))
	assert.True(t, p.Retryable(model.KindServerError))
	assert.True(t, p.Retryable(model.KindNetwork))
	assert.False(t, p.Retryable(model.KindAuthentication))
	assert.False(t, p.Retryable(model.KindUnknown))
}

func TestTrackAttempts_CountsEveryCall(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ex := newExecutor(clock, model.RateLimit{}, steadyPolicy())
	ctx, attempts := resilience.TrackAttempts(context.Background())

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- resilience.Run(ctx, ex, "op", func(context.Context) error {
			if calls.Add(1) == 1 {
				return &model.NormalizedError{Kind: model.KindServerError}
			}
			return nil
		})
	}()

	advanceWhenSleeping(t, clock, time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, 2, attempts())
}
