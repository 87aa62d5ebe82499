// Package experiment drives the lifecycle of an experiment session: load the
// trial list, wait for the operator, run every trial through the study's
// hooks, save each attempt and tear down exactly once.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/trialrun/internal/input"
	"github.com/nvandessel/trialrun/internal/logging"
	"github.com/nvandessel/trialrun/internal/metrics"
	"github.com/nvandessel/trialrun/internal/response"
	"github.com/nvandessel/trialrun/internal/results"
	"github.com/nvandessel/trialrun/internal/sched"
	"github.com/nvandessel/trialrun/internal/session"
	"github.com/nvandessel/trialrun/internal/trial"
	"github.com/nvandessel/trialrun/internal/triallist"
)

// ErrDestroyed is returned by Run once the controller has been torn down.
var ErrDestroyed = errors.New("experiment already destroyed")

// ErrRunning is returned by Run while another Run is in progress.
var ErrRunning = errors.New("experiment already running")

// Option configures a Controller.
type Option func(*settings)

type settings struct {
	trialList     string
	listName      string
	repeatInvalid bool
	clock         sched.Clock
	device        input.Device
	tickLimit     uint64
	logger        *slog.Logger
	events        *logging.EventLog
	metrics       *metrics.Metrics
	now           func() time.Time
}

// WithTrialList sets the trial list file.
func WithTrialList(path string) Option {
	return func(s *settings) { s.trialList = path }
}

// WithListName sets the trial list name used in diagnostics.
func WithListName(name string) Option {
	return func(s *settings) { s.listName = name }
}

// WithRepeatInvalid re-presents trials that end without a valid response.
func WithRepeatInvalid(repeat bool) Option {
	return func(s *settings) { s.repeatInvalid = repeat }
}

// WithClock sets the tick clock. The default ticks in real time at
// sched.DefaultTickRate.
func WithClock(c sched.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithDevice sets the input device. The default never reports input.
func WithDevice(d input.Device) Option {
	return func(s *settings) { s.device = d }
}

// WithTickLimit bounds the run. Zero means no limit.
func WithTickLimit(n uint64) Option {
	return func(s *settings) { s.tickLimit = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithEventLog records trial events.
func WithEventLog(e *logging.EventLog) Option {
	return func(s *settings) { s.events = e }
}

// WithMetrics instruments the run.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// Controller runs one experiment session for payload type P.
type Controller[P trial.Payload] struct {
	hooks   Hooks[P]
	writer  results.Writer
	table   *triallist.Table[P]
	tracker *response.Tracker
	sched   *sched.Scheduler

	trialList string
	logger    *slog.Logger
	events    *logging.EventLog
	metrics   *metrics.Metrics
	now       func() time.Time

	// Trial accounting, touched only by the task.
	trialStart time.Duration
	saved      int
	valid      int

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	destroyed bool
}

// New creates a controller. factory creates empty payloads for the trial
// list, hooks implement the study and writer receives every saved attempt.
func New[P trial.Payload](factory trial.Factory[P], hooks Hooks[P], writer results.Writer, opts ...Option) *Controller[P] {
	s := settings{
		listName: "TrialList",
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.clock == nil {
		s.clock = sched.NewRealClock(sched.DefaultTickRate)
	}
	if hooks == nil {
		hooks = NopHooks[P]{}
	}
	if writer == nil {
		writer = results.Multi{}
	}

	c := &Controller[P]{
		hooks:     hooks,
		writer:    writer,
		trialList: s.trialList,
		logger:    s.logger,
		events:    s.events,
		metrics:   s.metrics,
		now:       s.now,
	}
	c.table = triallist.New(factory,
		triallist.WithName(s.listName),
		triallist.WithRepeatInvalid(s.repeatInvalid),
		triallist.WithLogger(s.logger))
	c.sched = sched.New(s.clock, s.device,
		sched.WithTickLimit(s.tickLimit),
		sched.WithLogger(s.logger))
	c.tracker = response.NewTracker(c.table, c.sched,
		response.WithLogger(s.logger),
		response.WithEventLog(s.events),
		response.WithMetrics(s.metrics))

	c.sched.OnTick(func(now time.Duration, in input.State) {
		c.metrics.ObserveTick()
		c.tracker.Tick(now, in)
		c.hooks.UpdateEachTick(c, now)
	})
	return c
}

// Table returns the trial table.
func (c *Controller[P]) Table() *triallist.Table[P] { return c.table }

// Tracker returns the response tracker.
func (c *Controller[P]) Tracker() *response.Tracker { return c.tracker }

// CurrentTrial returns the trial being run, or nil.
func (c *Controller[P]) CurrentTrial() *trial.Record[P] { return c.table.Current() }

// Now returns the time since the first tick.
func (c *Controller[P]) Now() time.Duration { return c.sched.Now() }

// Abort ends the session after the current trial.
func (c *Controller[P]) Abort() { c.table.Abort() }

// WaitSeconds suspends the calling hook for the given number of seconds.
func (c *Controller[P]) WaitSeconds(ctx context.Context, seconds float64) error {
	return c.sched.Sleep(ctx, time.Duration(seconds*float64(time.Second)))
}

// Run executes the session and tears it down. The returned summary is
// filled in even when Run fails.
//
// An abort from the input device is a normal end of the session. Run
// returns an error when ctx is cancelled, when Destroy interrupts it, when
// the tick limit is reached or when teardown fails.
func (c *Controller[P]) Run(ctx context.Context) (session.Summary, error) {
	c.mu.Lock()
	switch {
	case c.destroyed:
		c.mu.Unlock()
		return session.Summary{}, ErrDestroyed
	case c.running:
		c.mu.Unlock()
		return session.Summary{}, ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.running = false
		close(c.done)
		c.mu.Unlock()
	}()

	summary := session.Summary{TrialList: c.trialList, StartedAt: c.now()}
	c.load()
	runErr := c.sched.Run(ctx, c.script)
	if runErr != nil {
		c.logger.Warn("experiment stopped early", "error", runErr)
		c.table.Abort()
	}
	teardownErr := c.teardown()

	summary.EndedAt = c.now()
	summary.Loaded = c.table.Count()
	summary.Rejected = len(c.table.Rejected())
	summary.Saved = c.saved
	summary.Valid = c.valid
	summary.Repeats = c.table.Repeats()
	summary.Aborted = c.table.Aborted()
	summary.Ticks = c.sched.Ticks()

	err := errors.Join(runErr, teardownErr)
	if err != nil {
		summary.Error = err.Error()
	}
	return summary, err
}

// Destroy tears the session down early. A running session is cancelled and
// Destroy waits for its teardown; otherwise teardown runs directly. Further
// calls do nothing. Destroy must not be called from a hook.
func (c *Controller[P]) Destroy() error {
	c.mu.Lock()
	if c.running {
		cancel, done := c.cancel, c.done
		c.mu.Unlock()
		c.logger.Info("destroying running experiment")
		cancel()
		<-done
		return nil
	}
	c.mu.Unlock()
	return c.teardown()
}

// load reads the trial list before the first tick, so input sampled on that
// tick (an abort in particular) applies to the loaded table.
func (c *Controller[P]) load() {
	if c.trialList == "" {
		c.logger.Warn("no trial list configured: proceeding with zero trials")
		return
	}
	if err := c.table.Load(c.trialList); err != nil {
		c.logger.Warn("trial list not loaded: proceeding with zero trials", "error", err)
		return
	}
	c.logger.Info("trial list loaded",
		"list", c.table.Name(),
		"trials", c.table.Count(),
		"rejected", len(c.table.Rejected()),
		"repeat_invalid", c.table.RepeatInvalid())
}

// script is the lifecycle run as the scheduler task.
func (c *Controller[P]) script(ctx context.Context) error {
	c.logger.Info("initializing experiment", "trials", c.table.Count())

	if err := c.hook(ctx, "initialize", func() error { return c.hooks.Initialize(ctx, c) }); err != nil {
		return err
	}
	if err := c.tracker.WaitForAccept(ctx); err != nil {
		return err
	}
	if !c.table.Aborted() {
		c.logger.Info("starting experiment")
		if err := c.hook(ctx, "start", func() error { return c.hooks.Start(ctx, c) }); err != nil {
			return err
		}
	}

	for c.table.Advance() {
		rec := c.table.Current()
		c.beginTrial(rec)
		if err := c.hooks.RunTrial(ctx, c, rec); err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.logger.Error("trial failed: marking invalid", "trial", rec.Index, "error", err)
			rec.Valid = false
		}
		c.save(rec)
	}

	c.logger.Info("concluding experiment", "aborted", c.table.Aborted())
	if err := c.hooks.Conclude(ctx, c); err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.logger.Error("conclude hook failed", "error", err)
	}
	return nil
}

// hook runs a setup hook. A failure aborts the table; cancellation is returned.
func (c *Controller[P]) hook(ctx context.Context, name string, f func() error) error {
	err := f()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	c.logger.Error("hook failed: aborting experiment", "hook", name, "error", err)
	c.table.Abort()
	return nil
}

func (c *Controller[P]) beginTrial(rec *trial.Record[P]) {
	c.trialStart = c.sched.Now()
	event := "trial_start"
	if c.table.State() == triallist.Repeating {
		event = "trial_repeat"
		c.metrics.ObserveRepeat()
		c.logger.Info("repeating invalid trial", "trial", rec.Index)
	} else {
		c.logger.Info("starting trial", "trial", rec.Index, "of", c.table.Count())
	}
	c.events.Log(map[string]any{"event": event, "trial": rec.Index, "at": c.trialStart.Seconds()})
}

func (c *Controller[P]) save(rec *trial.Record[P]) {
	if err := c.writer.Save(rec); err != nil {
		c.logger.Error("saving trial failed", "trial", rec.Index, "error", err)
		return
	}
	c.saved++
	if rec.Valid {
		c.valid++
	}

	latency := 0.0
	if rec.Responded() {
		latency = rec.ResponseTime - c.trialStart.Seconds()
	}
	c.metrics.ObserveSaved(rec.Valid, latency)
	c.events.Log(map[string]any{
		"event":         "trial_saved",
		"trial":         rec.Index,
		"response":      rec.Response,
		"response_time": rec.ResponseTime,
		"valid":         rec.Valid,
	})
}

// teardown runs the Destroy hook and closes the writer, once.
func (c *Controller[P]) teardown() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.mu.Unlock()

	c.logger.Info("destroying experiment")
	var errs []error
	if err := c.hooks.Destroy(c); err != nil {
		errs = append(errs, fmt.Errorf("destroy hook: %w", err))
	}
	if err := c.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing results: %w", err))
	}
	if c.table.Aborted() {
		c.metrics.ObserveAbort()
	}
	return errors.Join(errs...)
}
