// Package buses implements the bus illusion study: the subject watches a
// line of buses pass at one velocity while the camera moves at another,
// and reports with a response button when the perceived motion changes.
package buses

import (
	"fmt"
	"strconv"

	"github.com/nvandessel/trialrun/internal/trial"
)

// ListColumns is the trial list header.
var ListColumns = []string{"Break", "SM_velocity", "OM_velocity", "duration"}

// ResultColumns are the study columns of the results file.
var ResultColumns = []string{"Break", "SM_velocity", "OM_velocity", "duration", "StartTime", "ChangeTime"}

// Trial is one bus presentation.
type Trial struct {
	// Break > 0 shows the rest screen after the trial.
	Break int

	// SMVelocity is the self-motion (camera) velocity in km/h.
	SMVelocity float64

	// OMVelocity is the object-motion (bus) velocity in km/h.
	OMVelocity float64

	// Duration of the motion in seconds.
	Duration int

	// Times in seconds since the experiment started.
	StartTime  float64
	ChangeTime float64
	EndTime    float64
}

var (
	_ trial.Payload              = (*Trial)(nil)
	_ trial.ResponseTimeReporter = (*Trial)(nil)
)

// New is the trial factory.
func New() *Trial { return &Trial{} }

func (t *Trial) ListColumns() []string { return ListColumns }

func (t *Trial) ResultColumns() []string { return ResultColumns }

func (t *Trial) Parse(fields []string) error {
	if len(fields) != len(ListColumns) {
		return fmt.Errorf("expected %d fields, got %d", len(ListColumns), len(fields))
	}
	brk, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("parsing Break: %w", err)
	}
	sm, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return fmt.Errorf("parsing SM_velocity: %w", err)
	}
	om, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return fmt.Errorf("parsing OM_velocity: %w", err)
	}
	dur, err := strconv.Atoi(fields[3])
	if err != nil {
		return fmt.Errorf("parsing duration: %w", err)
	}
	if dur < 0 {
		return fmt.Errorf("duration must not be negative, got %d", dur)
	}
	t.Break, t.SMVelocity, t.OMVelocity, t.Duration = brk, sm, om, dur
	return nil
}

func (t *Trial) ResultValues() []any {
	return []any{t.Break, t.SMVelocity, t.OMVelocity, t.Duration, t.StartTime, t.ChangeTime}
}

// ReportResponseTime reports milliseconds from the change time when a
// button was pressed, and 0 otherwise.
func (t *Trial) ReportResponseTime(o trial.Outcome) float64 {
	if o.Response == 0 {
		return 0
	}
	return (o.ResponseTime - t.ChangeTime) * 1000
}
