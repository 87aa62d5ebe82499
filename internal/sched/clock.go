package sched

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Clock paces the tick loop.
type Clock interface {
	// Next blocks until the next tick is due and returns its time since
	// the first tick.
	Next(ctx context.Context) (time.Duration, error)
}

// RealClock ticks at a fixed rate in wall-clock time.
type RealClock struct {
	limiter *rate.Limiter
	start   time.Time
}

// NewRealClock creates a clock ticking hz times per second.
func NewRealClock(hz int) *RealClock {
	if hz <= 0 {
		hz = DefaultTickRate
	}
	return &RealClock{limiter: rate.NewLimiter(rate.Every(time.Second/time.Duration(hz)), 1)}
}

func (c *RealClock) Next(ctx context.Context) (time.Duration, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	if c.start.IsZero() {
		c.start = time.Now()
	}
	return time.Since(c.start), nil
}

// StepClock advances virtual time by a fixed step per tick without sleeping.
type StepClock struct {
	Step    time.Duration
	now     time.Duration
	started bool
}

// NewStepClock creates a virtual clock with the given tick length.
func NewStepClock(step time.Duration) *StepClock {
	return &StepClock{Step: step}
}

func (c *StepClock) Next(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.started {
		c.now += c.Step
	}
	c.started = true
	return c.now, nil
}
