package results

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sink is the tab-separated results file.
//
// The file is opened in append mode by the first Save, which also writes the
// header row. Values are written as they are, joined by tabs, with no
// quoting. Close writes a trailing blank line and releases the file. A
// Sink that never saved creates no file.
type Sink struct {
	path   string
	logger *slog.Logger

	file   *os.File
	buf    *bufio.Writer
	closed bool
	rows   int
}

// NewSink creates a sink writing to path.
func NewSink(path string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{path: path, logger: logger}
}

// Path returns the results file path.
func (s *Sink) Path() string { return s.path }

// Rows returns the number of data rows written.
func (s *Sink) Rows() int { return s.rows }

// Save appends row, writing the header first if the file is not open yet.
// A nil row, or a row without a header, is ignored.
func (s *Sink) Save(row Row) error {
	if row == nil {
		return nil
	}
	if s.closed {
		return ErrClosed
	}
	header := row.ResultsHeader()
	if len(header) == 0 {
		return nil
	}
	if s.file == nil {
		if err := s.open(); err != nil {
			return err
		}
		if err := s.writeLine(header); err != nil {
			return fmt.Errorf("writing results header: %w", err)
		}
	}
	if err := s.writeLine(formatLine(row.ResultsLine())); err != nil {
		return fmt.Errorf("writing results row %d: %w", row.TrialIndex(), err)
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("writing results row %d: %w", row.TrialIndex(), err)
	}
	s.rows++
	return nil
}

func (s *Sink) writeLine(fields []string) error {
	if _, err := s.buf.WriteString(strings.Join(fields, "\t")); err != nil {
		return err
	}
	_, err := s.buf.WriteString("\n")
	return err
}

func (s *Sink) open() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening results file: %w", err)
	}
	s.file = f
	s.buf = bufio.NewWriter(f)
	return nil
}

// Close finishes the file. It is a no-op when nothing was saved and safe to
// call more than once.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}

	s.logger.Info("saving results", "path", s.path, "rows", s.rows)
	_, err := s.buf.WriteString("\n")
	if err == nil {
		err = s.buf.Flush()
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	if err != nil {
		return fmt.Errorf("closing results file: %w", err)
	}
	return nil
}

func formatLine(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = formatValue(v)
	}
	return out
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(v)
	}
}
