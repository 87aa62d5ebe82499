package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	allowedDir := t.TempDir()
	otherDir := t.TempDir()

	subDir := filepath.Join(allowedDir, "subdir")
	if err := os.MkdirAll(subDir, 0700); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		allowedDirs []string
		wantErr     bool
		errContains string
	}{
		{
			name:        "inside allowed dir",
			path:        filepath.Join(allowedDir, "Results.tsv"),
			allowedDirs: []string{allowedDir},
		},
		{
			name:        "in a missing subdirectory",
			path:        filepath.Join(allowedDir, "p01", "session1", "Results.tsv"),
			allowedDirs: []string{allowedDir},
		},
		{
			name:        "exactly the allowed dir",
			path:        allowedDir,
			allowedDirs: []string{allowedDir},
		},
		{
			name:        "dot-dot traversal",
			path:        filepath.Join(allowedDir, "..", "etc", "passwd"),
			allowedDirs: []string{allowedDir},
			wantErr:     true,
			errContains: "outside allowed directories",
		},
		{
			name:        "embedded dot-dot traversal",
			path:        filepath.Join(allowedDir, "subdir", "..", "..", "x.tsv"),
			allowedDirs: []string{allowedDir},
			wantErr:     true,
			errContains: "outside allowed directories",
		},
		{
			name:        "outside allowed dir",
			path:        filepath.Join(otherDir, "Results.tsv"),
			allowedDirs: []string{allowedDir},
			wantErr:     true,
			errContains: "outside allowed directories",
		},
		{
			name:        "second allowed dir matches",
			path:        filepath.Join(otherDir, "Results.tsv"),
			allowedDirs: []string{allowedDir, otherDir},
		},
		{
			name:        "null byte",
			path:        filepath.Join(allowedDir, "Res\x00ults.tsv"),
			allowedDirs: []string{allowedDir},
			wantErr:     true,
			errContains: "null byte",
		},
		{
			name:        "empty path",
			allowedDirs: []string{allowedDir},
			wantErr:     true,
			errContains: "empty",
		},
		{
			name:        "no allowed dirs",
			path:        filepath.Join(allowedDir, "Results.tsv"),
			wantErr:     true,
			errContains: "no allowed directories",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.allowedDirs)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidatePath() error = %v, want error containing %q", err, tt.errContains)
			}
		})
	}
}

func TestValidatePath_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on Windows")
	}

	allowedDir := t.TempDir()
	link := filepath.Join(allowedDir, "escape")
	if err := os.Symlink(t.TempDir(), link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	err := ValidatePath(filepath.Join(link, "Results.tsv"), []string{allowedDir})
	if !errors.Is(err, ErrOutsideDir) {
		t.Errorf("ValidatePath() error = %v, want ErrOutsideDir", err)
	}
}

func TestResultsFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"adds extension", "Buses", filepath.Join(dir, "Buses.tsv"), false},
		{"keeps extension", "Buses.txt", filepath.Join(dir, "Buses.txt"), false},
		{"subdirectory", "p01/Buses", filepath.Join(dir, "p01", "Buses.tsv"), false},
		{"escape", "../Buses", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResultsFile(dir, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResultsFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResultsFile() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	tests := []struct {
		input string
		want  string
	}{
		{"~/lists/a.csv", filepath.Join(home, "lists", "a.csv")},
		{"~", home},
		{"/abs/a.csv", "/abs/a.csv"},
		{"rel/~/a.csv", "rel/~/a.csv"},
	}
	for _, tt := range tests {
		got, err := ExpandHome(tt.input)
		if err != nil {
			t.Fatalf("ExpandHome(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"simple", "/home/user/.trialrun/results.db", ".../.trialrun/results.db"},
		{"deep", "/a/b/c/d/e.tsv", ".../d/e.tsv"},
		{"root file", "/file.tsv", "file.tsv"},
		{"relative", "dir/file.tsv", ".../dir/file.tsv"},
		{"just filename", "file.tsv", "file.tsv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactPath(tt.input); got != tt.want {
				t.Errorf("RedactPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHomeDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	got, err := HomeDir()
	if err != nil {
		t.Fatalf("HomeDir() error = %v", err)
	}
	if want := filepath.Join(home, ".trialrun"); got != want {
		t.Errorf("HomeDir() = %q, want %q", got, want)
	}
}
