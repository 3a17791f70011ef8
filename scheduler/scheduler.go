// Package scheduler keeps the engine's call cadence.
//
// Every wait is an absolute-deadline sleep on the monotonic clock. Lateness is
// classified against a tolerance and a drift ceiling: small lateness is counted
// as a violation, lateness past the ceiling means the schedule itself is lost
// (suspend, heavy contention) and the statistics restart.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/mklimuk/iaqmon/clock"
)

const (
	DefaultTolerance    = time.Millisecond
	DefaultDriftCeiling = 10 * time.Millisecond
	DefaultSummaryEvery = 100
	DefaultWarnRate     = 5.0
)

// Decision is the outcome of waiting for a deadline.
type Decision int

const (
	// Proceed means the deadline was met.
	Proceed Decision = iota
	// Late means the deadline was missed by more than the tolerance. The
	// cycle runs anyway.
	Late
	// Reset means the deadline was missed by more than the drift ceiling.
	// Statistics were cleared and the cadence restarts from this cycle.
	Reset
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Late:
		return "late"
	case Reset:
		return "reset"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of the scheduling counters. Cycles and Violations are
// cleared by a reset, Resets and LateWakes are not.
type Stats struct {
	Cycles     uint64
	Violations uint64
	Resets     uint64
	LateWakes  uint64
}

// ViolationRate returns violations as a percentage of cycles.
func (s Stats) ViolationRate() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Violations) / float64(s.Cycles) * 100
}

// StepFunc runs one cycle at now and returns the next deadline. An error ends
// the run.
type StepFunc func(ctx context.Context, now time.Duration) (time.Duration, error)

// Scheduler is used from the acquisition goroutine. Stats may be read from
// any goroutine.
type Scheduler struct {
	clock        clock.Clock
	tolerance    time.Duration
	ceiling      time.Duration
	summaryEvery uint64
	warnRate     float64
	logger       *slog.Logger

	cycles     atomic.Uint64
	violations atomic.Uint64
	resets     atomic.Uint64
	lateWakes  atomic.Uint64

	violationLog rate.Sometimes
	wakeLog      rate.Sometimes
	timestampLog rate.Sometimes
}

type Opt func(*Scheduler)

func WithTolerance(d time.Duration) Opt {
	return func(s *Scheduler) {
		s.tolerance = d
	}
}

func WithDriftCeiling(d time.Duration) Opt {
	return func(s *Scheduler) {
		s.ceiling = d
	}
}

// WithSummaryEvery sets the number of cycles between statistics summaries.
func WithSummaryEvery(cycles uint64) Opt {
	return func(s *Scheduler) {
		s.summaryEvery = cycles
	}
}

// WithWarnRate sets the violation percentage above which summaries are
// logged as warnings.
func WithWarnRate(percent float64) Opt {
	return func(s *Scheduler) {
		s.warnRate = percent
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func New(c clock.Clock, opts ...Opt) *Scheduler {
	s := &Scheduler{
		clock:        c,
		tolerance:    DefaultTolerance,
		ceiling:      DefaultDriftCeiling,
		summaryEvery: DefaultSummaryEvery,
		warnRate:     DefaultWarnRate,
		logger:       slog.Default(),
		violationLog: rate.Sometimes{Every: 30},
		wakeLog:      rate.Sometimes{Every: 30},
		timestampLog: rate.Sometimes{Every: 30},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Await blocks until deadline unless the deadline has already been missed.
func (s *Scheduler) Await(deadline time.Duration) Decision {
	delay := s.clock.Now() - deadline
	if delay > s.tolerance {
		if delay > s.ceiling {
			s.logger.Warn("severe timing drift, resetting schedule", "late", delay, "cycle", s.cycles.Load())
			s.resets.Inc()
			s.ResetStats()
			return Reset
		}
		n := s.violations.Inc()
		s.violationLog.Do(func() {
			s.logger.Debug("timing violation", "late", delay, "cycle", s.cycles.Load(), "violations", n)
		})
		return Late
	}

	s.clock.SleepUntil(deadline)

	if late := s.clock.Now() - deadline; late > s.tolerance {
		s.lateWakes.Inc()
		s.wakeLog.Do(func() {
			s.logger.Debug("woke up late", "late", late, "cycle", s.cycles.Load())
		})
	}
	return Proceed
}

// Timestamp returns the time to hand to the engine for this cycle and counts
// the cycle.
func (s *Scheduler) Timestamp() time.Duration {
	now := s.clock.Now()
	n := s.cycles.Inc()
	s.timestampLog.Do(func() {
		s.logger.Debug("engine timestamp", "now", now, "cycle", n)
	})
	if s.summaryEvery > 0 && n%s.summaryEvery == 0 {
		s.logSummary()
	}
	return now
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Cycles:     s.cycles.Load(),
		Violations: s.violations.Load(),
		Resets:     s.resets.Load(),
		LateWakes:  s.lateWakes.Load(),
	}
}

func (s *Scheduler) ResetStats() {
	s.cycles.Store(0)
	s.violations.Store(0)
	s.logger.Info("scheduling statistics reset")
}

func (s *Scheduler) logSummary() {
	st := s.Stats()
	r := st.ViolationRate()
	s.logger.Info("scheduling stats", "cycles", st.Cycles, "violations", st.Violations, "rate", r)
	if r > s.warnRate {
		s.logger.Warn("high timing violation rate, check system load", "rate", r, "threshold", s.warnRate)
	}
}

// Run drives step until ctx is done or step fails. The first cycle runs
// immediately. Cancellation is checked once per cycle; a sleep in progress
// is not interrupted.
func (s *Scheduler) Run(ctx context.Context, step StepFunc) error {
	deadline := s.clock.Now()
	for {
		if ctx.Err() != nil {
			s.logger.Info("acquisition stopped", "stats", s.Stats())
			return nil
		}
		s.Await(deadline)
		next, err := step(ctx, s.Timestamp())
		if err != nil {
			return err
		}
		deadline = next
	}
}
