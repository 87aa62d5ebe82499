// Package response records subject responses against the running trial and
// provides the waits a trial script uses to collect them.
package response

import (
	"context"
	"log/slog"
	"time"

	"github.com/nvandessel/trialrun/internal/input"
	"github.com/nvandessel/trialrun/internal/logging"
	"github.com/nvandessel/trialrun/internal/metrics"
	"github.com/nvandessel/trialrun/internal/trial"
)

// NoTimeout is the response window used when none is given.
const NoTimeout = 100000 * time.Second

// Trials is the part of the trial table the tracker needs. The tracker only
// looks the running trial up; it never owns it.
type Trials interface {
	Abort()
	Aborted() bool
	Index() int
	CurrentOutcome() *trial.Outcome
}

// Waiter suspends the calling task until a condition holds, re-checking it
// every tick.
type Waiter interface {
	WaitUntil(ctx context.Context, cond func() bool) error
	Now() time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithEventLog records responses, timeouts and aborts as trial events.
func WithEventLog(e *logging.EventLog) Option {
	return func(t *Tracker) { t.events = e }
}

// WithMetrics counts responses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// Tracker polls the input channels each tick and annotates the running trial.
type Tracker struct {
	trials  Trials
	waiter  Waiter
	logger  *slog.Logger
	events  *logging.EventLog
	metrics *metrics.Metrics

	state  input.State
	status [input.NumResponses]bool
}

// NewTracker creates a tracker for trials, suspending through waiter.
func NewTracker(trials Trials, waiter Waiter, opts ...Option) *Tracker {
	t := &Tracker{
		trials: trials,
		waiter: waiter,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Status returns the held state of the four response channels at the last tick.
func (t *Tracker) Status() [input.NumResponses]bool { return t.status }

// Tick records the input sampled at time now. It runs once per tick, before
// any per-tick study logic.
func (t *Tracker) Tick(now time.Duration, in input.State) {
	t.state = in
	if in.Pressed(input.Abort) {
		t.logger.Info("abort key pressed: will exit after current trial")
		t.events.Log(map[string]any{"event": "abort", "trial": t.trials.Index(), "at": now.Seconds()})
		t.trials.Abort()
	}
	for i, c := range input.Responses {
		t.record(i, c, now, in)
	}
}

// record applies the double-press rule: a press while the trial already
// holds a positive response invalidates it; otherwise the button is stored.
// The press time is stored either way.
func (t *Tracker) record(button int, c input.Channel, now time.Duration, in input.State) {
	t.status[button] = in.Held(c)
	if !in.Pressed(c) {
		return
	}
	out := t.trials.CurrentOutcome()
	if out == nil {
		return
	}

	event := "response"
	if out.Response > 0 {
		out.Response = trial.InvalidResponse
		event = "double_press"
	} else {
		out.Response = button + 1
	}
	out.ResponseTime = now.Seconds()

	t.logger.Debug("pressed response button", "button", button+1, "trial", t.trials.Index(),
		"response", out.Response, "at", out.ResponseTime)
	t.events.Log(map[string]any{
		"event":    event,
		"trial":    t.trials.Index(),
		"button":   button + 1,
		"response": out.Response,
		"at":       out.ResponseTime,
	})
	t.metrics.ObserveResponse(event)
}

// WaitForAccept suspends until the accept key is pressed or the table is aborted.
func (t *Tracker) WaitForAccept(ctx context.Context) error {
	t.logger.Info("waiting for accept key")
	err := t.waiter.WaitUntil(ctx, func() bool {
		return t.state.Pressed(input.Accept) || t.trials.Aborted()
	})
	if err == nil && t.state.Pressed(input.Accept) {
		t.logger.Info("accept key pressed")
	}
	return err
}

// WaitForResponse suspends until the running trial holds a positive
// response, the table is aborted, no trial is running, or max elapses.
// A timeout is an outcome, not an error; it is reported by timedOut.
func (t *Tracker) WaitForResponse(ctx context.Context, max time.Duration) (timedOut bool, err error) {
	if max <= 0 {
		max = NoTimeout
	}
	until := t.waiter.Now() + max
	err = t.waiter.WaitUntil(ctx, func() bool {
		if t.trials.Aborted() {
			return true
		}
		out := t.trials.CurrentOutcome()
		if out == nil || out.Response > 0 {
			return true
		}
		if t.waiter.Now() >= until {
			timedOut = true
			return true
		}
		return false
	})
	if err != nil {
		return false, err
	}
	if timedOut {
		t.logger.Info("response timed out", "trial", t.trials.Index(), "window", max)
		t.events.Log(map[string]any{"event": "response_timeout", "trial": t.trials.Index(), "window": max.Seconds()})
		t.metrics.ObserveResponse("timeout")
	}
	return timedOut, nil
}

// WaitForRelease suspends until no response key is held. It returns at once
// when none is held.
func (t *Tracker) WaitForRelease(ctx context.Context) error {
	if !t.state.AnyResponseHeld() {
		return nil
	}
	t.logger.Info("waiting for all keys released")
	return t.waiter.WaitUntil(ctx, func() bool { return !t.state.AnyResponseHeld() })
}
