// Package results persists one row per completed trial attempt.
//
// Sink writes the tab-separated results file; Store mirrors the same rows
// into a SQLite database; Multi fans a row out to several writers.
package results

import (
	"errors"

	"github.com/nvandessel/trialrun/internal/trial"
)

// ErrClosed is returned by Save after Close. Writers are not reopened.
var ErrClosed = errors.New("results writer is closed")

// Row is a trial rendered for the results.
type Row interface {
	TrialIndex() int
	ResultsHeader() []string
	ResultsLine() []any
}

var _ Row = (*trial.Record[trial.Payload])(nil)

// Writer receives saved trials.
type Writer interface {
	Save(row Row) error
	Close() error
}

// Multi fans saves out to every writer.
type Multi []Writer

// Save writes row to every writer and joins their errors.
func (m Multi) Save(row Row) error {
	var errs []error
	for _, w := range m {
		if err := w.Save(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
