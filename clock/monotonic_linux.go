//go:build linux

package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// CLOCK_MONOTONIC is used for both reading and sleeping: clock_nanosleep does
// not accept CLOCK_MONOTONIC_RAW, and mixing the two would skew deadlines.
func (Monotonic) Now() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return fallbackNow()
	}
	return time.Duration(ts.Nano())
}

func (m Monotonic) SleepUntil(deadline time.Duration) {
	if deadline <= m.Now() {
		return
	}
	ts := unix.NsecToTimespec(int64(deadline))
	for {
		err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, unix.TIMER_ABSTIME, &ts, nil)
		switch err {
		case nil:
			return
		case unix.EINTR:
			continue
		default:
			fallbackSleepUntil(m, deadline)
			return
		}
	}
}
