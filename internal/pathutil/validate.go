// Package pathutil resolves and checks the output paths of a session.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/trialrun/internal/constants"
)

// ErrOutsideDir is returned when a path escapes its allowed directories.
var ErrOutsideDir = errors.New("path is outside allowed directories")

// RedactPath shortens a path to .../<parent>/<basename> for logs and listings.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// HomeDir returns ~/.trialrun.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, constants.HomeDirName), nil
}

// ResultsFile returns dir/name.tsv after checking that name does not
// escape dir.
func ResultsFile(dir, name string) (string, error) {
	if name == "" {
		return "", errors.New("results name is empty")
	}
	if filepath.Ext(name) == "" {
		name += constants.ResultsFileExt
	}
	path := filepath.Join(dir, name)
	if err := ValidatePath(path, []string{dir}); err != nil {
		return "", err
	}
	return path, nil
}

// ValidatePath checks that path lies within one of allowedDirs after
// cleaning and resolving symlinks. The file itself need not exist.
func ValidatePath(path string, allowedDirs []string) error {
	switch {
	case path == "":
		return errors.New("path validation failed: path is empty")
	case len(allowedDirs) == 0:
		return errors.New("path validation failed: no allowed directories configured")
	case strings.ContainsRune(path, '\x00'):
		return errors.New("path validation failed: path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	resolved := filepath.Join(dir, filepath.Base(abs))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		base, err := resolveExisting(allowedAbs)
		if err != nil {
			continue
		}
		if within(resolved, base) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrOutsideDir, RedactPath(abs))
}

// resolveExisting resolves symlinks on the deepest existing ancestor of dir
// and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}
	resolved, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, filepath.Base(dir)), nil
}

func within(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}
