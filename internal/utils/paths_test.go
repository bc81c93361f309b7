package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizePath(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name      string
		candidate string
		want      string
		ok        bool
	}{
		{"relative inside", "movies", filepath.Join(base, "movies"), true},
		{"nested inside", "tv/season1", filepath.Join(base, "tv", "season1"), true},
		{"dot", ".", base, true},
		{"empty", "", base, true},
		{"traversal escape", "../outside", "", false},
		{"deep traversal", "a/../../outside", "", false},
		{"absolute inside", filepath.Join(base, "iso"), filepath.Join(base, "iso"), true},
		{"absolute outside", filepath.Join(os.TempDir(), "elsewhere-xyz"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SanitizePath(base, tt.candidate)
			if ok != tt.ok {
				t.Fatalf("SanitizePath(%q, %q) ok = %v, want %v", base, tt.candidate, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("SanitizePath(%q, %q) = %q, want %q", base, tt.candidate, got, tt.want)
			}
			if ok && !filepath.IsAbs(got) {
				t.Errorf("accepted path %q is not absolute", got)
			}
		})
	}
}

func TestSanitizePathSiblingPrefix(t *testing.T) {
	// /data/downloads-evil must not pass for base /data/downloads
	base := filepath.Join(t.TempDir(), "downloads")
	if err := os.MkdirAll(base, 0755); err != nil {
		t.Fatal(err)
	}
	if _, ok := SanitizePath(base, base+"-evil"); ok {
		t.Error("sibling directory sharing a name prefix was accepted")
	}
}

func TestSanitizePathSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "downloads")
	outside := filepath.Join(root, "outside")
	for _, dir := range []string{base, filepath.Join(outside, "sub")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(base, "escape")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(base, "movies"), filepath.Join(base, "alias")); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(base, "movies"), 0755); err != nil {
		t.Fatal(err)
	}

	if _, ok := SanitizePath(base, "escape"); ok {
		t.Error("symlink pointing outside the base was accepted")
	}
	if _, ok := SanitizePath(base, "escape/sub"); ok {
		t.Error("path under an escaping symlink was accepted")
	}
	if got, ok := SanitizePath(base, "alias"); !ok {
		t.Error("symlink pointing inside the base was rejected")
	} else if got != filepath.Join(base, "movies") {
		t.Errorf("resolved symlink = %q, want %q", got, filepath.Join(base, "movies"))
	}
}

func TestFirstLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "link.magnet")
	content := "\n\n  magnet:?xt=urn:btih:abc123  \nsecond line\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := FirstLine(path)
	if err != nil {
		t.Fatalf("FirstLine: %v", err)
	}
	if got != "magnet:?xt=urn:btih:abc123" {
		t.Errorf("FirstLine = %q", got)
	}
}

func TestFirstLineEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.magnet")
	if err := os.WriteFile(path, []byte("\n\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := FirstLine(path)
	if err != nil {
		t.Fatalf("FirstLine: %v", err)
	}
	if got != "" {
		t.Errorf("FirstLine = %q, want empty", got)
	}
}
