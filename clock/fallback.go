package clock

import "time"

// the runtime reads the monotonic clock for time.Since
var processStart = time.Now()

func fallbackNow() time.Duration {
	return time.Since(processStart)
}

func fallbackSleepUntil(c Clock, deadline time.Duration) {
	for {
		d := deadline - c.Now()
		if d <= 0 {
			return
		}
		time.Sleep(d)
	}
}
