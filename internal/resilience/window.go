package resilience

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

// Window is a sliding-window request counter guarding one provider instance.
// Timestamps older than the window are pruned before every admission check,
// and check-then-record runs under a single lock so concurrent callers can
// never both take the last slot.
type Window struct {
	mu     sync.Mutex
	limit  model.RateLimit
	clock  clockwork.Clock
	stamps []time.Time // Ascending; len(stamps) <= limit.MaxRequests.
}

// NewWindow creates a limiter for the given quota. A nil clock uses real time.
func NewWindow(limit model.RateLimit, clock clockwork.Clock) *Window {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	w := &Window{limit: limit, clock: clock}
	if !limit.Unlimited() {
		w.stamps = make([]time.Time, 0, limit.MaxRequests)
	}
	return w
}

// Admit records an attempt and returns 0 if the quota allows it now.
// Otherwise nothing is recorded and the returned duration is how long until
// the oldest attempt leaves the window; the caller waits and asks again.
func (w *Window) Admit() time.Duration {
	if w.limit.Unlimited() {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)

	if len(w.stamps) < w.limit.MaxRequests {
		w.stamps = append(w.stamps, now)
		return 0
	}

	wait := w.stamps[0].Add(w.limit.Window).Sub(now)
	if wait <= 0 {
		// Unreachable after prune; guard against a clock that moved backwards.
		wait = time.Nanosecond
	}
	return wait
}

// InFlight returns how many attempts are currently counted in the window.
func (w *Window) InFlight() int {
	if w.limit.Unlimited() {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.clock.Now())
	return len(w.stamps)
}

// Limit returns the configured quota.
func (w *Window) Limit() model.RateLimit { return w.limit }

func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.limit.Window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
