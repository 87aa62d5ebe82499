// Package sched runs an experiment script cooperatively with a per-tick
// update loop.
//
// The script runs as a single task that hands control back to the tick loop
// whenever it waits. Each tick the loop samples the input device once, runs
// the tick callbacks and then resumes the task until it waits again. The two
// sides never run at the same time, so state shared between tick callbacks
// and the task needs no locking.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nvandessel/trialrun/internal/input"
)

// DefaultTickRate is the tick rate used when none is configured.
const DefaultTickRate = 60

// ErrTickLimit is returned when a run exceeds its tick limit.
var ErrTickLimit = errors.New("tick limit reached")

// TickFunc is called once per tick, before the task is resumed.
type TickFunc func(now time.Duration, in input.State)

// Task is the script run by the scheduler.
type Task func(ctx context.Context) error

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickLimit stops the run after n ticks. Zero means no limit.
func WithTickLimit(n uint64) Option {
	return func(s *Scheduler) { s.tickLimit = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler drives one task in lock-step with a tick loop.
type Scheduler struct {
	clock     Clock
	device    input.Device
	logger    *slog.Logger
	tickLimit uint64
	tickers   []TickFunc

	now   time.Duration
	state input.State
	ticks uint64

	resume chan struct{}
	yield  chan struct{}
}

// New creates a scheduler.
func New(clock Clock, device input.Device, opts ...Option) *Scheduler {
	if device == nil {
		device = input.Idle
	}
	s := &Scheduler{
		clock:  clock,
		device: device,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnTick registers a tick callback. Callbacks run in registration order.
func (s *Scheduler) OnTick(f TickFunc) {
	s.tickers = append(s.tickers, f)
}

// Now returns the time of the current tick.
func (s *Scheduler) Now() time.Duration { return s.now }

// Input returns the input state sampled at the current tick.
func (s *Scheduler) Input() input.State { return s.state }

// Ticks returns the number of ticks run so far.
func (s *Scheduler) Ticks() uint64 { return s.ticks }

// Run executes task until it returns, ctx is cancelled or the tick limit is
// reached. The task starts after the first tick. When the run stops early
// the task's context is cancelled and Run waits for the task to return, so
// the task can always clean up.
func (s *Scheduler) Run(ctx context.Context, task Task) error {
	s.resume = make(chan struct{})
	s.yield = make(chan struct{})

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		select {
		case <-s.resume:
		case <-taskCtx.Done():
			done <- taskCtx.Err()
			return
		}
		done <- task(taskCtx)
	}()

	stop := func(cause error) error {
		cancel()
		return errors.Join(cause, ignoreCanceled(<-done, cause))
	}

	for {
		if s.tickLimit > 0 && s.ticks >= s.tickLimit {
			s.logger.Warn("stopping experiment task", "reason", ErrTickLimit, "ticks", s.ticks)
			return stop(ErrTickLimit)
		}
		now, err := s.clock.Next(ctx)
		if err != nil {
			return stop(err)
		}

		s.now = now
		s.ticks++
		s.state = s.device.Poll()
		for _, f := range s.tickers {
			f(now, s.state)
		}

		select {
		case s.resume <- struct{}{}:
		case err := <-done:
			return err
		}
		select {
		case <-s.yield:
		case err := <-done:
			return err
		}
	}
}

// ignoreCanceled drops the task's cancellation error when it only echoes
// the reason the scheduler stopped.
func ignoreCanceled(taskErr, cause error) error {
	if errors.Is(taskErr, context.Canceled) && !errors.Is(cause, context.Canceled) {
		return nil
	}
	if errors.Is(taskErr, cause) {
		return nil
	}
	return taskErr
}

// Yield suspends the task until the next tick. It must only be called from
// the task.
func (s *Scheduler) Yield(ctx context.Context) error {
	select {
	case s.yield <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-s.resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitUntil suspends the task at least once and until cond holds. cond is
// evaluated after the tick callbacks of each tick.
func (s *Scheduler) WaitUntil(ctx context.Context, cond func() bool) error {
	for {
		if err := s.Yield(ctx); err != nil {
			return err
		}
		if cond() {
			return nil
		}
	}
}

// Sleep suspends the task until d has elapsed on the scheduler clock.
func (s *Scheduler) Sleep(ctx context.Context, d time.Duration) error {
	until := s.now + d
	return s.WaitUntil(ctx, func() bool { return s.now >= until })
}
