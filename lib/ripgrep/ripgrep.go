// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ripgrep shells out to rg to discover dangerous files under a
// working tree. Bubblewrap bind rules are path-literal, so files like
// .npmrc or .git/hooks nested below the working directory must be found
// up front to be masked.
package ripgrep

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Options configures a discovery run.
type Options struct {
	// Command is the rg binary; defaults to "rg".
	Command string
	// ExtraArgs are appended after the built-in flags.
	ExtraArgs []string
	// MaxDepth bounds the search below the working directory.
	MaxDepth int
	// Files and Directories are the dangerous names to search for.
	Files       []string
	Directories []string
}

// ErrNotFound reports a missing rg binary.
var ErrNotFound = errors.New("ripgrep not found")

// FindDangerous lists absolute paths of dangerous files below cwd.
func FindDangerous(cwd string, opts Options) ([]string, error) {
	command := opts.Command
	if command == "" {
		command = "rg"
	}

	args := BuildArgs(cwd, opts)
	output, err := exec.Command(command, args...).Output()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, command)
		}
		// rg exits 1 when nothing matched; that is a clean empty result.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("ripgrep failed: %w", err)
	}

	var files []string
	for _, line := range strings.Split(string(output), "\n") {
		if line == "" {
			continue
		}
		if filepath.IsAbs(line) {
			files = append(files, line)
		} else {
			files = append(files, filepath.Join(cwd, line))
		}
	}
	return files, nil
}

// BuildArgs assembles the rg argument list for a discovery run.
// Separated from execution so the flag set is testable.
func BuildArgs(cwd string, opts Options) []string {
	args := []string{"--files", "--hidden"}
	if opts.MaxDepth > 0 {
		args = append(args, "--max-depth", fmt.Sprintf("%d", opts.MaxDepth))
	}

	// Case-insensitive globs: dangerous dotfiles are dangerous in any
	// case on case-insensitive filesystems.
	for _, file := range opts.Files {
		args = append(args, "--iglob", "**/"+file)
	}
	for _, dir := range opts.Directories {
		args = append(args, "--iglob", "**/"+dir+"/**")
	}

	// node_modules is large and never contains files we mask.
	args = append(args, "-g", "!**/node_modules/**")

	args = append(args, opts.ExtraArgs...)
	args = append(args, cwd)
	return args
}

// Available reports whether the rg binary runs.
func Available(command string) bool {
	if command == "" {
		command = "rg"
	}
	return exec.Command(command, "--version").Run() == nil
}
