package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/trialrun/internal/config"
	"github.com/nvandessel/trialrun/internal/results"
	"github.com/nvandessel/trialrun/internal/session"
)

// isolateHome sets HOME to a temp directory to avoid touching real ~/.trialrun/
// MUST be called for any test that loads config or opens stores
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
	for _, key := range []string{
		"TRIALRUN_STUDY", "TRIALRUN_TRIAL_LIST", "TRIALRUN_RESULTS_DIR",
		"TRIALRUN_RESULTS_NAME", "TRIALRUN_INPUT_SOURCE", "TRIALRUN_TICK_RATE",
		"TRIALRUN_LOG_LEVEL", "TRIALRUN_METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeTestConfig writes a config file that keeps every output under tmpDir.
func writeTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()
	path := filepath.Join(tmpDir, "config.yaml")
	content := `experiment:
  study: buses
results:
  dir: ` + filepath.Join(tmpDir, "results") + `
  name: P01
  database: ` + filepath.Join(tmpDir, "results.db") + `
timing:
  tick_rate: 60
buses:
  min_inter_trial: 0.5
  max_inter_trial: 1
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func writeTrialList(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "TrialList.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write trial list: %v", err)
	}
	return path
}

func TestNewVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	if cmd.Use != "version" {
		t.Errorf("Use = %q, want %q", cmd.Use, "version")
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestNewRunCmd(t *testing.T) {
	cmd := newRunCmd()
	if cmd.Use != "run" {
		t.Errorf("Use = %q, want %q", cmd.Use, "run")
	}
	for _, name := range []string{"study", "trial-list", "name", "results-dir", "repeat-invalid", "simulate", "seed", "metrics-addr"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing --%s flag", name)
		}
	}
}

func TestLookupStudy(t *testing.T) {
	if _, err := lookupStudy("buses"); err != nil {
		t.Errorf("lookupStudy(buses) error = %v", err)
	}
	_, err := lookupStudy("trains")
	if err == nil {
		t.Fatal("expected error for unknown study")
	}
	if !strings.Contains(err.Error(), "buses") {
		t.Errorf("error %q should list known studies", err)
	}
}

func TestValidateCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	t.Run("rows accepted and rejected", func(t *testing.T) {
		list := writeTrialList(t, tmpDir, "Break;SM_velocity;OM_velocity;duration\n0;10;20;1\n0;10\n1;x;20;1\n0;30;40;2\n")
		out, err := execute(t, "validate", "--config", cfgPath, "--json", list)
		if err != nil {
			t.Fatalf("validate failed: %v", err)
		}
		var report struct {
			Accepted int        `json:"accepted"`
			Rejected []rowIssue `json:"rejected"`
			Valid    bool       `json:"valid"`
		}
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("invalid JSON %q: %v", out, err)
		}
		if report.Accepted != 2 {
			t.Errorf("accepted = %d, want 2", report.Accepted)
		}
		if len(report.Rejected) != 2 {
			t.Fatalf("rejected = %v, want 2 rows", report.Rejected)
		}
		if report.Rejected[0].Line != 3 || report.Rejected[1].Line != 4 {
			t.Errorf("rejected lines = %d,%d, want 3,4", report.Rejected[0].Line, report.Rejected[1].Line)
		}
		if !report.Valid {
			t.Error("expected list to be valid")
		}
	})

	t.Run("wrong header", func(t *testing.T) {
		list := writeTrialList(t, tmpDir, "Break;velocity;duration\n0;10;1\n")
		if _, err := execute(t, "validate", "--config", cfgPath, list); err == nil {
			t.Error("expected error for wrong header")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "validate", "--config", cfgPath, filepath.Join(tmpDir, "nope.txt"))
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("error = %v, want not found", err)
		}
	})
}

func TestConfigSetGet(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	if _, err := execute(t, "config", "--config", cfgPath, "set", "buses.max_inter_trial", "3"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	out, err := execute(t, "config", "--config", cfgPath, "get", "buses.max_inter_trial")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(out) != "buses.max_inter_trial = 3" {
		t.Errorf("get output = %q", out)
	}

	if _, err := execute(t, "config", "--config", cfgPath, "set", "buses.max_inter_trial", "0.1"); err == nil {
		t.Error("expected error when max_inter_trial < min_inter_trial")
	}
	if _, err := execute(t, "config", "--config", cfgPath, "set", "no.such.key", "1"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := execute(t, "config", "--config", cfgPath, "get", "no.such.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSetConfigValue(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	cfgPath := writeTestConfig(t, tmpDir)
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{"experiment.repeat_invalid", "true", false},
		{"input.responses", "a, s, d, f", false},
		{"input.hold_window", "200ms", false},
		{"input.hold_window", "soon", true},
		{"timing.tick_rate", "120", false},
		{"timing.tick_rate", "fast", true},
		{"experiment.study", "trains", true},
		{"buses.initial_buses_x", "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := setConfigValue(cfg, tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("setConfigValue(%s, %s) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
		})
	}

	if !cfg.Experiment.RepeatInvalid {
		t.Error("repeat_invalid not set")
	}
	if got, _ := getConfigValue(cfg, "input.responses"); got != "a,s,d,f" {
		t.Errorf("input.responses = %v", got)
	}
	if cfg.Timing.TickRate != 120 {
		t.Errorf("tick_rate = %d, want 120", cfg.Timing.TickRate)
	}
}

func TestRunSimulated(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)
	list := writeTrialList(t, tmpDir, "Break;SM_velocity;OM_velocity;duration\n0;10;20;1\n0;30;40;1\n")

	out, err := execute(t, "run", "--config", cfgPath, "--json", "--simulate", "--trial-list", list, "--seed", "7")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	var summary session.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if summary.Loaded != 2 || summary.Saved != 2 {
		t.Errorf("loaded/saved = %d/%d, want 2/2", summary.Loaded, summary.Saved)
	}
	if summary.Aborted || summary.Error != "" {
		t.Errorf("aborted = %v, error = %q", summary.Aborted, summary.Error)
	}

	resultsPath := filepath.Join(tmpDir, "results", "P01.tsv")
	if summary.ResultsPath != resultsPath {
		t.Errorf("results path = %q, want %q", summary.ResultsPath, resultsPath)
	}
	data, err := os.ReadFile(resultsPath)
	if err != nil {
		t.Fatalf("results file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("results file has %d lines, want header + 2:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "Index\t") {
		t.Errorf("header = %q", lines[0])
	}

	saved, err := session.LoadSummary(session.SummaryPath(filepath.Join(tmpDir, "results"), "P01"))
	if err != nil {
		t.Fatalf("summary file: %v", err)
	}
	if saved.ID != summary.ID {
		t.Errorf("summary id = %q, want %q", saved.ID, summary.ID)
	}

	store, err := results.OpenStore(context.Background(), filepath.Join(tmpDir, "results.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	sess, err := store.GetSession(context.Background(), summary.ID)
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if sess.TrialsSaved != 2 || sess.EndedAt == nil {
		t.Errorf("stored session = %+v", sess)
	}

	out, err = execute(t, "sessions", "--config", cfgPath, "list")
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(out, summary.ID) {
		t.Errorf("sessions list output missing %s:\n%s", summary.ID, out)
	}

	out, err = execute(t, "sessions", "--config", cfgPath, "show", summary.ID)
	if err != nil {
		t.Fatalf("sessions show failed: %v", err)
	}
	if !strings.Contains(out, "SM_velocity=30") {
		t.Errorf("sessions show output missing trial columns:\n%s", out)
	}
	if !strings.Contains(out, "Summary:    2 loaded, 0 rejected") {
		t.Errorf("sessions show output missing the run summary:\n%s", out)
	}
}

func TestRunMissingTrialList(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	out, err := execute(t, "run", "--config", cfgPath, "--json", "--simulate",
		"--trial-list", filepath.Join(tmpDir, "missing.txt"))
	if err != nil {
		t.Fatalf("run should fail open on a missing list: %v", err)
	}
	var summary session.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if summary.Loaded != 0 || summary.Saved != 0 {
		t.Errorf("loaded/saved = %d/%d, want 0/0", summary.Loaded, summary.Saved)
	}
}
