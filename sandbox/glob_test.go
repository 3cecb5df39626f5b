// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

// compile builds a Go regexp from the Seatbelt translation; the dialects
// agree on the constructs the translator emits.
func compile(t *testing.T, pattern string) *regexp.Regexp {
	t.Helper()
	re, err := regexp.Compile(GlobToSeatbeltRegex(pattern))
	if err != nil {
		t.Fatalf("translation of %q produced invalid regex: %v", pattern, err)
	}
	return re
}

func TestGlobToSeatbeltRegex(t *testing.T) {
	tests := []struct {
		glob    string
		path    string
		matches bool
	}{
		// * stops at slashes.
		{"*.ts", "file.ts", true},
		{"*.ts", "dir/file.ts", false},
		// ** crosses slashes.
		{"src/**", "src/file.ts", true},
		{"src/**", "src/deep/file.ts", true},
		{"src/**", "other/file.ts", false},
		// **/ is zero or more whole directories.
		{"**/*.ts", "file.ts", true},
		{"**/*.ts", "dir/file.ts", true},
		{"**/*.ts", "deep/dir/file.ts", true},
		// ? is one non-slash character.
		{"file?.txt", "file1.txt", true},
		{"file?.txt", "fileA.txt", true},
		{"file?.txt", "file.txt", false},
		{"file?.txt", "file12.txt", false},
		{"file?.txt", "file/.txt", false},
		// Braces become alternation.
		{"*.{ts,js}", "file.ts", true},
		{"*.{ts,js}", "file.js", true},
		{"*.{ts,js}", "file.py", false},
		// Character classes pass through.
		{"file[0-9].txt", "file5.txt", true},
		{"file[0-9].txt", "fileX.txt", false},
		// Dots are literal.
		{"path.with.dots", "path.with.dots", true},
		{"path.with.dots", "pathXwithYdots", false},
		// Absolute patterns are anchored.
		{"/tmp/**", "/tmp/a/b", true},
		{"/tmp/**", "/tmpx/a", false},
		{"/tmp/*", "/tmp/a", true},
		{"/tmp/*", "/tmp/a/b", false},
	}

	for _, tt := range tests {
		re := compile(t, tt.glob)
		if got := re.MatchString(tt.path); got != tt.matches {
			t.Errorf("glob %q vs path %q: match = %v, want %v (regex %q)",
				tt.glob, tt.path, got, tt.matches, re.String())
		}
	}
}

func TestGlobToSeatbeltRegexAnchored(t *testing.T) {
	regex := GlobToSeatbeltRegex("/tmp/*.log")
	if regex[0] != '^' || regex[len(regex)-1] != '$' {
		t.Errorf("regex %q is not anchored", regex)
	}
}

func TestGlobToSeatbeltRegexDeterministic(t *testing.T) {
	a := GlobToSeatbeltRegex("/home/*/.cache/**")
	b := GlobToSeatbeltRegex("/home/*/.cache/**")
	if a != b {
		t.Error("translator is not deterministic")
	}
}

func TestSeatbeltRegexesDirectoryRule(t *testing.T) {
	regexes := SeatbeltRegexes("/var/data/")
	if len(regexes) != 2 {
		t.Fatalf("directory rule should expand to 2 regexes, got %v", regexes)
	}

	exact := regexp.MustCompile(regexes[0])
	children := regexp.MustCompile(regexes[1])

	if !exact.MatchString("/var/data") {
		t.Error("exact regex should match the directory itself")
	}
	if !children.MatchString("/var/data/file") {
		t.Error("children regex should match entries below the directory")
	}
	if children.MatchString("/var/database") {
		t.Error("children regex should not match sibling prefixes")
	}
}

func TestExpandGlobLiteral(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", ".hidden.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	// Visible entries only for a bare pattern.
	matches := ExpandGlobLiteral(filepath.Join(dir, "*.txt"))
	if len(matches) != 2 {
		t.Errorf("expected 2 visible matches, got %v", matches)
	}

	// Explicit dot segment includes hidden entries.
	matches = ExpandGlobLiteral(filepath.Join(dir, ".*.txt"))
	if len(matches) != 1 {
		t.Errorf("expected the hidden file, got %v", matches)
	}

	// No matches is a no-op, not an error.
	if matches := ExpandGlobLiteral(filepath.Join(dir, "*.missing")); matches != nil {
		t.Errorf("expected no matches, got %v", matches)
	}

	// A plain path passes through even if it does not exist.
	plain := filepath.Join(dir, "plain")
	if matches := ExpandGlobLiteral(plain); len(matches) != 1 || matches[0] != plain {
		t.Errorf("plain path should pass through, got %v", matches)
	}
}
