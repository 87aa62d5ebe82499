// Package session persists the summary of one experiment run next to its
// results file.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// summarySuffix is appended to the results name to form the summary filename.
const summarySuffix = ".summary.json"

// Summary describes a finished run.
type Summary struct {
	ID          string    `json:"id"`
	Study       string    `json:"study"`
	TrialList   string    `json:"trial_list"`
	ResultsPath string    `json:"results_path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`

	// Loaded is the number of trials accepted from the trial list and
	// Rejected the number of rows skipped with a diagnostic.
	Loaded   int `json:"loaded"`
	Rejected int `json:"rejected"`

	Saved   int `json:"saved"`
	Valid   int `json:"valid"`
	Repeats int `json:"repeats"`

	Aborted bool   `json:"aborted"`
	Ticks   uint64 `json:"ticks"`
	Error   string `json:"error,omitempty"`
}

// Invalid returns the number of saved trials that were invalid.
func (s *Summary) Invalid() int {
	return s.Saved - s.Valid
}

// Duration returns the wall-clock length of the run.
func (s *Summary) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// SummaryPath returns the summary path for the results name in dir.
func SummaryPath(dir, name string) string {
	return filepath.Join(dir, name+summarySuffix)
}

// SaveSummary writes s as JSON to path, creating the parent directory.
func SaveSummary(s *Summary, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating session summary directory: %w", err)
	}

	// Write atomically via temp file + rename.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing session summary temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming session summary file: %w", err)
	}
	return nil
}

// LoadSummary reads a summary written by SaveSummary.
func LoadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling session summary: %w", err)
	}
	return &s, nil
}
