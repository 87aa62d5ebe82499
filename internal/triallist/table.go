// Package triallist reads a trial list, iterates over it and handles
// repetition of invalid trials and operator aborts.
//
// Usage:
//
//	t := triallist.New(buses.NewTrial, triallist.WithRepeatInvalid(true))
//	if err := t.Load(path); err != nil { ... } // zero trials on error
//	for t.Advance() {
//		rec := t.Current()
//		...
//	}
package triallist

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/nvandessel/trialrun/internal/trial"
)

var (
	lineSplit  = regexp.MustCompile(`\r\n|\n\r|\n|\r`)
	fieldSplit = regexp.MustCompile(`;|\t`)
)

// State is the iteration state of a table.
type State int

const (
	NotStarted State = iota
	Running
	Repeating
	Exhausted
	Aborted
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Repeating:
		return "repeating"
	case Exhausted:
		return "exhausted"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Option configures a Table.
type Option func(*options)

type options struct {
	name          string
	repeatInvalid bool
	logger        *slog.Logger
}

// WithName sets the name used in diagnostics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithRepeatInvalid makes Advance re-present trials that ended invalid.
func WithRepeatInvalid(repeat bool) Option {
	return func(o *options) { o.repeatInvalid = repeat }
}

// WithLogger sets the logger for load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Table is an ordered list of trials with a cursor.
//
// Table is not safe for concurrent use; it is driven from the single
// experiment task and the tick callbacks that run in lock-step with it.
type Table[P trial.Payload] struct {
	factory       trial.Factory[P]
	name          string
	repeatInvalid bool
	logger        *slog.Logger

	records  []*trial.Record[P]
	rejected []*RowError
	index    int
	current  *trial.Record[P]
	aborted  bool
	finished bool
	repeat   bool
	repeats  int
}

// New creates an empty table for the payload produced by factory.
func New[P trial.Payload](factory trial.Factory[P], opts ...Option) *Table[P] {
	o := options{name: "TrialList", logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Table[P]{
		factory:       factory,
		name:          o.name,
		repeatInvalid: o.repeatInvalid,
		logger:        o.logger,
	}
}

// Parse builds a table from trial list text.
// On a header mismatch the returned table is empty and the error is a *HeaderError.
func Parse[P trial.Payload](text string, factory trial.Factory[P], opts ...Option) (*Table[P], error) {
	t := New(factory, opts...)
	err := t.Read(text)
	return t, err
}

// Name returns the trial list name.
func (t *Table[P]) Name() string { return t.name }

// RepeatInvalid reports whether invalid trials are repeated.
func (t *Table[P]) RepeatInvalid() bool { return t.repeatInvalid }

// Load reads the trial list from path.
func (t *Table[P]) Load(path string) error {
	t.logger.Info("reading trial list", "name", t.name, "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		t.reset(nil, nil)
		if errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn("trial list file not found", "name", t.name, "path", path)
			return fmt.Errorf("%w: %s", ErrMissingSource, path)
		}
		return fmt.Errorf("reading trial list: %w", err)
	}
	return t.Read(string(data))
}

// Read replaces the table contents with the trials parsed from text.
// Malformed rows are skipped and reported by Rejected.
func (t *Table[P]) Read(text string) error {
	lines := lineSplit.Split(strings.TrimPrefix(text, "\ufeff"), -1)
	if len(lines) <= 1 {
		t.reset(nil, nil)
		t.logger.Info("trial list has no data rows", "name", t.name)
		return nil
	}

	expected := t.factory().ListColumns()
	header := fieldSplit.Split(lines[0], -1)
	if !slices.Equal(header, expected) {
		t.reset(nil, nil)
		err := &HeaderError{Expected: slices.Clone(expected), Actual: header}
		t.logger.Error("trial list has a wrong header", "name", t.name,
			"expected", expected, "actual", header)
		return err
	}

	var (
		records  []*trial.Record[P]
		rejected []*RowError
	)
	for i := 1; i < len(lines); i++ {
		values := fieldSplit.Split(lines[i], -1)
		if len(values) == 0 || values[0] == "" {
			continue
		}
		if len(values) != len(expected) {
			re := &RowError{Line: i + 1, Fields: len(values), Want: len(expected), Err: ErrRowShape}
			rejected = append(rejected, re)
			t.logger.Warn("ignoring invalid trial list entry", "name", t.name, "line", i+1,
				"fields", len(values), "want", len(expected))
			continue
		}

		payload := t.factory()
		if err := payload.Parse(values); err != nil {
			re := &RowError{Line: i + 1, Fields: len(values), Want: len(expected),
				Err: fmt.Errorf("%w: %w", ErrRowValue, err)}
			rejected = append(rejected, re)
			t.logger.Warn("ignoring unparsable trial list entry", "name", t.name, "line", i+1, "error", err)
			continue
		}
		records = append(records, trial.NewRecord(len(records)+1, payload))
	}

	t.reset(records, rejected)
	t.logger.Info("read trial list", "name", t.name, "trials", len(records), "rejected", len(rejected))
	return nil
}

func (t *Table[P]) reset(records []*trial.Record[P], rejected []*RowError) {
	t.records = records
	t.rejected = rejected
	t.index = 0
	t.current = nil
	t.aborted = false
	t.finished = false
	t.repeat = false
	t.repeats = 0
}

// Abort stops the table at the next Advance. The running trial is not interrupted.
func (t *Table[P]) Abort() {
	t.aborted = true
}

// Aborted reports whether Abort was called.
func (t *Table[P]) Aborted() bool { return t.aborted }

// Count returns the number of loaded trials.
func (t *Table[P]) Count() int { return len(t.records) }

// Index returns the 1-based cursor, or 0 when not running.
func (t *Table[P]) Index() int { return t.index }

// Current returns the trial being run, or nil.
func (t *Table[P]) Current() *trial.Record[P] { return t.current }

// CurrentOutcome returns the outcome of the trial being run, or nil.
func (t *Table[P]) CurrentOutcome() *trial.Outcome {
	if t.current == nil {
		return nil
	}
	return &t.current.Outcome
}

// Records returns the loaded trials in order.
func (t *Table[P]) Records() []*trial.Record[P] { return t.records }

// Rejected returns the diagnostics of rows skipped by the last Read.
func (t *Table[P]) Rejected() []*RowError { return t.rejected }

// Repeats returns how many times a trial was re-presented.
func (t *Table[P]) Repeats() int { return t.repeats }

// State returns the iteration state.
func (t *Table[P]) State() State {
	switch {
	case t.current != nil && t.repeat:
		return Repeating
	case t.current != nil:
		return Running
	case t.finished && t.aborted:
		return Aborted
	case t.finished:
		return Exhausted
	default:
		return NotStarted
	}
}

// Advance ends the current trial and reports whether there is a trial to run.
//
// A trial without a positive response is invalid. An invalid trial is
// re-presented, with its outcome reset, when repetition is enabled and the
// table was not aborted. Otherwise the cursor moves on; after the last trial
// or after an abort the cursor returns to 0 and Advance reports false.
func (t *Table[P]) Advance() bool {
	if cur := t.current; cur != nil {
		if cur.Response <= 0 {
			cur.Valid = false
		}
		if !cur.Valid && t.repeatInvalid && !t.aborted {
			cur.Reset()
			t.repeat = true
			t.repeats++
			return true
		}
	}

	t.repeat = false
	if t.aborted || t.index+1 > len(t.records) {
		t.index = 0
		t.current = nil
		t.finished = true
		return false
	}
	t.index++
	t.current = t.records[t.index-1]
	return true
}
