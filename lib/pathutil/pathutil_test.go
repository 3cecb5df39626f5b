// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandHome("~"); got != home {
		t.Errorf("ExpandHome(~) = %q, want %q", got, home)
	}
	if got := ExpandHome("~/Documents"); got != filepath.Join(home, "Documents") {
		t.Errorf("ExpandHome(~/Documents) = %q", got)
	}
	if got := ExpandHome("/absolute/path"); got != "/absolute/path" {
		t.Errorf("ExpandHome(/absolute/path) = %q", got)
	}
	if got := ExpandHome("relative/path"); got != "relative/path" {
		t.Errorf("ExpandHome(relative/path) = %q", got)
	}
}

func TestContainsGlob(t *testing.T) {
	for _, p := range []string{"*.txt", "src/**/*.go", "file?.txt", "file[0-9].txt", "file{a,b}.txt"} {
		if !ContainsGlob(p) {
			t.Errorf("ContainsGlob(%q) = false, want true", p)
		}
	}
	if ContainsGlob("/plain/path") {
		t.Error("ContainsGlob(/plain/path) = true, want false")
	}
}

func TestTrimGlobSuffix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/path/**", "/path"},
		{"/path/*", "/path"},
		{"/path/**/**", "/path"},
		{"/path", "/path"},
	}
	for _, tt := range tests {
		if got := TrimGlobSuffix(tt.in); got != tt.want {
			t.Errorf("TrimGlobSuffix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBaseDir(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/path/to/**", "/path/to"},
		{"/path/to/*.txt", "/path/to"},
		{"/path/*/subdir", "/path"},
		{"/tmp/test[123].txt", "/tmp"},
		{"/path/to/file", "/path/to/file"},
		{"/*.txt", "/"},
		{"*.txt", "."},
	}
	for _, tt := range tests {
		if got := BaseDir(tt.in); got != tt.want {
			t.Errorf("BaseDir(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapesBoundary(t *testing.T) {
	if !EscapesBoundary("/home/user/link", "/") {
		t.Error("symlink to root should escape")
	}
	if !EscapesBoundary("/home/user/link", "/home") {
		t.Error("symlink to ancestor should escape")
	}
	if EscapesBoundary("/home/user/dir", "/home/user/dir") {
		t.Error("identical path should not escape")
	}
	if EscapesBoundary("/home/user/link", "/var/data") {
		t.Error("unrelated target should not escape")
	}
}

func TestHierarchy(t *testing.T) {
	got := Hierarchy("/home/user/.cache/tool")
	want := []string{"/home", "/home/user", "/home/user/.cache", "/home/user/.cache/tool"}
	if len(got) != len(want) {
		t.Fatalf("Hierarchy returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Hierarchy[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if h := Hierarchy("/"); h != nil {
		t.Errorf("Hierarchy(/) = %v, want nil", h)
	}
}
