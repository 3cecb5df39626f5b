// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ripgrep

import (
	"slices"
	"testing"
)

func TestBuildArgs(t *testing.T) {
	args := BuildArgs("/work", Options{
		MaxDepth:    3,
		Files:       []string{".npmrc", ".bashrc"},
		Directories: []string{".git/hooks"},
		ExtraArgs:   []string{"--no-ignore"},
	})

	for _, want := range []string{"--files", "--hidden", "--max-depth", "3", "--no-ignore", "/work"} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}

	// iglob patterns are anchored under any directory.
	if !containsPair(args, "--iglob", "**/.npmrc") {
		t.Errorf("missing iglob for .npmrc: %v", args)
	}
	if !containsPair(args, "--iglob", "**/.git/hooks/**") {
		t.Errorf("missing iglob for .git/hooks: %v", args)
	}
	if !containsPair(args, "-g", "!**/node_modules/**") {
		t.Errorf("missing node_modules exclusion: %v", args)
	}

	// cwd is the final argument.
	if args[len(args)-1] != "/work" {
		t.Errorf("cwd should be last: %v", args)
	}
}

func TestBuildArgsNoDepth(t *testing.T) {
	args := BuildArgs("/work", Options{})
	if slices.Contains(args, "--max-depth") {
		t.Errorf("zero depth should omit --max-depth: %v", args)
	}
}

func containsPair(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}
