// Package clock provides the monotonic time source used for engine timing.
//
// Times are durations since an arbitrary, fixed epoch. Sleeps always target an
// absolute deadline so that many short waits do not accumulate drift.
package clock

import (
	"sync"
	"time"

	clk "github.com/benbjohnson/clock"
)

// Clock is a monotonic time source with absolute-deadline sleeps.
type Clock interface {
	// Now returns the current monotonic time.
	Now() time.Duration
	// SleepUntil blocks until deadline has passed. It returns immediately when
	// the deadline is already in the past.
	SleepUntil(deadline time.Duration)
}

// Monotonic is the system monotonic clock. It is not affected by wall clock
// steps (NTP, manual changes).
type Monotonic struct{}

func NewMonotonic() Monotonic {
	return Monotonic{}
}

// Simulated is a virtual clock. SleepUntil advances virtual time instead of
// blocking, so long acquisition runs can be replayed instantly. The underlying
// mock can be shared with components driven by tickers.
type Simulated struct {
	mx    sync.Mutex
	mock  *clk.Mock
	epoch time.Time
}

func NewSimulated() *Simulated {
	return NewSimulatedFrom(clk.NewMock())
}

func NewSimulatedFrom(mock *clk.Mock) *Simulated {
	return &Simulated{mock: mock, epoch: mock.Now()}
}

func (s *Simulated) Now() time.Duration {
	return s.mock.Now().Sub(s.epoch)
}

func (s *Simulated) SleepUntil(deadline time.Duration) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if d := deadline - s.Now(); d > 0 {
		s.mock.Add(d)
	}
}

// Advance moves virtual time forward, as if the caller had been busy for d.
func (s *Simulated) Advance(d time.Duration) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.mock.Add(d)
}

// Mock exposes the underlying mock clock.
func (s *Simulated) Mock() *clk.Mock {
	return s.mock
}
