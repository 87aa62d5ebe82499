package triallist

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrHeaderMismatch is returned when the header row differs from the
	// columns the trial type declares. Nothing is loaded.
	ErrHeaderMismatch = errors.New("trial list header mismatch")

	// ErrMissingSource is returned when the trial list file cannot be found.
	ErrMissingSource = errors.New("trial list file not found")

	// ErrRowShape marks a row whose field count differs from the header.
	ErrRowShape = errors.New("wrong number of fields")

	// ErrRowValue marks a row the trial type could not decode.
	ErrRowValue = errors.New("invalid field value")
)

// HeaderError describes a header mismatch.
type HeaderError struct {
	Expected []string
	Actual   []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("%s: expected [%s], got [%s]", ErrHeaderMismatch,
		strings.Join(e.Expected, ";"), strings.Join(e.Actual, ";"))
}

func (e *HeaderError) Unwrap() error { return ErrHeaderMismatch }

// RowError describes a data row that was skipped.
// Line is 1-based and counts the header.
type RowError struct {
	Line   int
	Fields int
	Want   int
	Err    error
}

func (e *RowError) Error() string {
	if errors.Is(e.Err, ErrRowShape) {
		return fmt.Sprintf("line %d: %s (got %d, want %d)", e.Line, ErrRowShape, e.Fields, e.Want)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
