package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonotonic_NowIncreases(t *testing.T) {
	c := NewMonotonic()
	a := c.Now()
	b := c.Now()
	assert.GreaterOrEqual(t, b, a)
}

func TestMonotonic_SleepUntilPastDeadline(t *testing.T) {
	c := NewMonotonic()
	now := c.Now()
	start := time.Now()
	c.SleepUntil(now - time.Second)
	c.SleepUntil(now)
	assert.Less(t, time.Since(start), 5*time.Millisecond, "past deadline should not block")
}

func TestMonotonic_SleepUntil(t *testing.T) {
	c := NewMonotonic()
	deadline := c.Now() + 20*time.Millisecond
	c.SleepUntil(deadline)
	assert.GreaterOrEqual(t, c.Now(), deadline)
}

func TestSimulated_SleepUntil(t *testing.T) {
	c := NewSimulated()
	assert.Equal(t, time.Duration(0), c.Now())

	c.SleepUntil(2 * time.Second)
	assert.Equal(t, 2*time.Second, c.Now())

	// no-op on a past deadline
	c.SleepUntil(time.Second)
	assert.Equal(t, 2*time.Second, c.Now())

	c.Advance(15 * time.Millisecond)
	assert.Equal(t, 2*time.Second+15*time.Millisecond, c.Now())
}
