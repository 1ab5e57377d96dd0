package resilience_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

func TestWindow_AdmitsUpToLimitThenWaits(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := resilience.NewWindow(model.RateLimit{MaxRequests: 3, Window: 10 * time.Second}, clock)

	for i := range 3 {
		assert.Zero(t, w.Admit(), "call %d", i+1)
	}

	wait := w.Admit()
	assert.Positive(t, wait)
	assert.LessOrEqual(t, wait, 10*time.Second)
	assert.Equal(t, 3, w.InFlight())

	clock.Advance(10 * time.Second)
	assert.Zero(t, w.Admit())
}

func TestWindow_TwoPerTenSeconds_ThirdCallWaitIsBounded(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := resilience.NewWindow(model.RateLimit{MaxRequests: 2, Window: 10 * time.Second}, clock)

	assert.Zero(t, w.Admit())
	assert.Zero(t, w.Admit())
	third := w.Admit()

	assert.Greater(t, third, time.Duration(0))
	assert.LessOrEqual(t, third, 10*time.Second)
}

func TestWindow_WaitTracksOldestEntry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := resilience.NewWindow(model.RateLimit{MaxRequests: 2, Window: 10 * time.Second}, clock)

	assert.Zero(t, w.Admit())
	clock.Advance(4 * time.Second)
	assert.Zero(t, w.Admit())

	assert.Equal(t, 6*time.Second, w.Admit())

	clock.Advance(6 * time.Second)
	assert.Zero(t, w.Admit(), "oldest entry has left the window")
	assert.Equal(t, 4*time.Second, w.Admit(), "second entry is now the oldest")
}

func TestWindow_DeniedAdmissionRecordsNothing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := resilience.NewWindow(model.RateLimit{MaxRequests: 1, Window: time.Second}, clock)

	assert.Zero(t, w.Admit())
	for range 5 {
		assert.Positive(t, w.Admit())
	}
	assert.Equal(t, 1, w.InFlight())
}

func TestWindow_Unlimited(t *testing.T) {
	w := resilience.NewWindow(model.RateLimit{}, clockwork.NewFakeClock())
	for range 1000 {
		assert.Zero(t, w.Admit())
	}
}

func TestWindow_ConcurrentAdmissionNeverOvershoots(t *testing.T) {
	clock := clockwork.NewFakeClock()
	const limit = 10
	w := resilience.NewWindow(model.RateLimit{MaxRequests: limit, Window: time.Minute}, clock)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Admit() == 0 {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())
}
