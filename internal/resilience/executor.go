package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

// Observer receives executor events, typically to feed metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	AttemptFinished(id model.ProviderIdentity, operation string, elapsed time.Duration, err error)
	RateLimited(id model.ProviderIdentity, wait time.Duration)
	RetryScheduled(id model.ProviderIdentity, operation string, kind model.ErrorKind, delay time.Duration)
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(model.ProviderIdentity, string, time.Duration, error) {}

func (nopObserver) RateLimited(model.ProviderIdentity, time.Duration) {}

func (nopObserver) RetryScheduled(model.ProviderIdentity, string, model.ErrorKind, time.Duration) {}

// ExecutorConfig holds the collaborators of an Executor. Window is required;
// the rest default to real time, no observer and slog.Default().
type ExecutorConfig struct {
	Identity model.ProviderIdentity
	Policy   Policy
	Window   *Window
	Clock    clockwork.Clock
	Observer Observer
	Logger   *slog.Logger
}

// Executor runs vendor calls for one provider instance under its retry policy
// and rate window. It holds no per-call state and starts no goroutines.
type Executor struct {
	id       model.ProviderIdentity
	policy   Policy
	window   *Window
	clock    clockwork.Clock
	observer Observer
	logger   *slog.Logger
}

// NewExecutor creates an Executor from cfg.
func NewExecutor(cfg ExecutorConfig) *Executor {
	ex := &Executor{
		id:       cfg.Identity,
		policy:   cfg.Policy.normalized(),
		window:   cfg.Window,
		clock:    cfg.Clock,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
	if ex.clock == nil {
		ex.clock = clockwork.NewRealClock()
	}
	if ex.window == nil {
		ex.window = NewWindow(model.RateLimit{}, ex.clock)
	}
	if ex.observer == nil {
		ex.observer = nopObserver{}
	}
	if ex.logger == nil {
		ex.logger = slog.Default()
	}
	return ex
}

// Identity returns the provider the executor serves.
func (ex *Executor) Identity() model.ProviderIdentity { return ex.id }

// Policy returns the effective retry policy.
func (ex *Executor) Policy() Policy { return ex.policy }

// Window returns the rate window shared by every call on this instance.
func (ex *Executor) Window() *Window { return ex.window }

// Clock returns the executor's time source.
func (ex *Executor) Clock() clockwork.Clock { return ex.clock }

type attemptsKey struct{}

// TrackAttempts returns a context under which every vendor call attempt made
// by an Executor is counted, and a func reporting the count so far.
func TrackAttempts(ctx context.Context) (context.Context, func() int) {
	counter := new(atomic.Int64)
	return context.WithValue(ctx, attemptsKey{}, counter), func() int { return int(counter.Load()) }
}

// Run executes fn like Do for operations with no result value.
func Run(ctx context.Context, ex *Executor, operation string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, ex, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do executes fn, waiting for rate-window admission before every attempt and
// retrying failures whose kind the policy allows. The returned error is a
// *model.NormalizedError with Attempts set, or a *model.ConfigurationError
// from fn passed through untouched. If a wait would outlast ctx, Do gives up
// with a KindNetwork error instead of blocking.
func Do[T any](ctx context.Context, ex *Executor, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	bo := ex.policy.NewBackOff(ex.clock)

	var last *model.NormalizedError
	for attempt := 1; ; attempt++ {
		if err := ex.admit(ctx); err != nil {
			return zero, abort(err, attempt-1, last)
		}

		if counter, ok := ctx.Value(attemptsKey{}).(*atomic.Int64); ok {
			counter.Add(1)
		}
		start := ex.clock.Now()
		result, err := fn(ctx)
		ex.observer.AttemptFinished(ex.id, operation, ex.clock.Since(start), err)
		if err == nil {
			return result, nil
		}

		var cfgErr *model.ConfigurationError
		if errors.As(err, &cfgErr) {
			return zero, err
		}

		last = FromError(err)
		if !ex.policy.Retryable(last.Kind) || attempt >= ex.policy.MaxAttempts {
			if ex.policy.Retryable(last.Kind) {
				ex.logger.Warn("vendor call failed after retries",
					"provider", ex.id.Key().String(),
					"operation", operation,
					"attempts", attempt,
					"kind", last.Kind,
					"error", last.Message,
				)
			}
			return zero, terminal(last, attempt)
		}

		delay := bo.NextBackOff()
		if last.Kind == model.KindRateLimit && last.RetryAfter > delay {
			delay = last.RetryAfter
		}

		ex.observer.RetryScheduled(ex.id, operation, last.Kind, delay)
		ex.logger.Debug("retrying vendor call",
			"provider", ex.id.Key().String(),
			"operation", operation,
			"attempt", attempt,
			"kind", last.Kind,
			"delay", delay,
		)

		if err := ex.sleep(ctx, delay); err != nil {
			return zero, abort(err, attempt, last)
		}
	}
}

// admit blocks until the window grants a slot, ctx ends, or the next wait
// would pass ctx's deadline.
func (ex *Executor) admit(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := ex.window.Admit()
		if wait == 0 {
			return nil
		}
		ex.observer.RateLimited(ex.id, wait)
		if err := ex.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (ex *Executor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if deadline, ok := ctx.Deadline(); ok && deadline.Sub(ex.clock.Now()) < d {
		return context.DeadlineExceeded
	}
	select {
	case <-ex.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abort builds the timeout error returned when a wait cannot complete.
// made is the number of calls that reached the vendor.
func abort(cause error, made int, last *model.NormalizedError) error {
	msg := "canceled"
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = "deadline exceeded"
	}
	if last != nil {
		msg += " after " + string(last.Kind) + ": " + last.Message
		cause = errors.Join(cause, last)
	}
	return &model.NormalizedError{
		Kind:     model.KindNetwork,
		Message:  msg,
		Attempts: made,
		Cause:    cause,
	}
}

func terminal(ne *model.NormalizedError, attempts int) *model.NormalizedError {
	out := *ne
	out.Attempts = attempts
	return &out
}
