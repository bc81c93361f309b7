package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// SanitizePath resolves candidate against base and ensures the result
// stays inside base. Relative candidates are joined to base; absolute
// candidates are kept as-is. Symlinks are followed where the path
// already exists, so a link inside base pointing elsewhere is caught.
// Returns the absolute path and true when the candidate is safe.
func SanitizePath(base, candidate string) (string, bool) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", false
	}
	if real, err := filepath.EvalSymlinks(absBase); err == nil {
		absBase = real
	}

	var resolved string
	if filepath.IsAbs(candidate) {
		resolved = filepath.Clean(candidate)
	} else {
		resolved = filepath.Join(absBase, candidate)
	}
	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = real
	}

	rel, err := filepath.Rel(absBase, resolved)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return resolved, true
}

// PathExists reports whether the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FirstLine returns the first non-empty line of a file, trimmed. Used
// for .magnet files which hold a single magnet URI.
func FirstLine(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
	}
	return "", nil
}
