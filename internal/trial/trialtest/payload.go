// Package trialtest provides a minimal trial payload for tests.
package trialtest

import (
	"fmt"
	"strconv"

	"github.com/nvandessel/trialrun/internal/trial"
)

// Columns is the trial list header expected by Stimulus.
var Columns = []string{"Label", "Duration"}

// Stimulus is a two-column payload: a label and a duration in seconds.
type Stimulus struct {
	Label    string
	Duration float64
}

var _ trial.Payload = (*Stimulus)(nil)

// New is a trial.Factory for Stimulus.
func New() *Stimulus { return &Stimulus{} }

func (s *Stimulus) ListColumns() []string { return Columns }

func (s *Stimulus) ResultColumns() []string { return Columns }

func (s *Stimulus) Parse(fields []string) error {
	if len(fields) != len(Columns) {
		return fmt.Errorf("expected %d fields, got %d", len(Columns), len(fields))
	}
	d, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return fmt.Errorf("parsing Duration: %w", err)
	}
	s.Label = fields[0]
	s.Duration = d
	return nil
}

func (s *Stimulus) ResultValues() []any {
	return []any{s.Label, s.Duration}
}
