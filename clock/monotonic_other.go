//go:build !linux

package clock

import "time"

func (Monotonic) Now() time.Duration {
	return fallbackNow()
}

func (m Monotonic) SleepUntil(deadline time.Duration) {
	fallbackSleepUntil(m, deadline)
}
