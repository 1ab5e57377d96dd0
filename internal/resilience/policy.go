package resilience

import (
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

// Policy controls how the executor retries one logical operation. It is fixed
// per vendor, not per call.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64 // Delays are spread by +/- this fraction.
	RetryableKinds []model.ErrorKind
}

// DefaultPolicy retries rate limits, server errors and network failures
// three times with jittered exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.2,
		RetryableKinds: []model.ErrorKind{model.KindRateLimit, model.KindServerError, model.KindNetwork},
	}
}

// Retryable reports whether a failure of the given kind may be retried.
func (p Policy) Retryable(kind model.ErrorKind) bool {
	return slices.Contains(p.RetryableKinds, kind)
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(d.MaxDelay, p.BaseDelay)
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	if p.JitterFraction > 1 {
		p.JitterFraction = 1
	}
	if p.RetryableKinds == nil {
		p.RetryableKinds = d.RetryableKinds
	}
	return p
}

// NewBackOff returns the delay sequence for one execution: base * 2^(n-1)
// spread by JitterFraction, never shorter than the previous delay and never
// longer than MaxDelay. It never gives up on its own; the attempt budget is
// enforced by the executor.
func (p Policy) NewBackOff(clock clockwork.Clock) backoff.BackOff {
	p = p.normalized()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: p.JitterFraction,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clock,
	}
	b.Reset()
	return &monotonicBackOff{next: b, ceiling: p.MaxDelay}
}

// monotonicBackOff clamps a jittered sequence to [previous delay, ceiling].
// ExponentialBackOff jitters after applying MaxInterval, so without the clamp
// delays at the cap overshoot it and fall back below earlier ones.
type monotonicBackOff struct {
	next    backoff.BackOff
	ceiling time.Duration
	prev    time.Duration
}

func (m *monotonicBackOff) NextBackOff() time.Duration {
	d := m.next.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	d = min(max(d, m.prev), m.ceiling)
	m.prev = d
	return d
}

func (m *monotonicBackOff) Reset() {
	m.next.Reset()
	m.prev = 0
}
