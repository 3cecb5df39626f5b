// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pathutil normalizes filesystem paths and patterns for sandbox
// rule synthesis.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading ~ or ~/ with the current user's home
// directory. Other paths are returned unchanged.
func ExpandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Normalize expands ~ and resolves the path to its canonical absolute
// form when it exists on disk. Paths that do not exist (or contain glob
// metacharacters) are returned expanded but otherwise untouched, so rule
// synthesis can still emit patterns for not-yet-created files.
func Normalize(path string) string {
	expanded := ExpandHome(path)
	if ContainsGlob(expanded) {
		// Canonicalize the glob-free prefix so patterns anchored under
		// symlinked locations (/tmp on macOS) match real paths.
		base := BaseDir(expanded)
		if base != "/" && base != "." && base != expanded {
			if canonical, err := filepath.EvalSymlinks(base); err == nil {
				return canonical + strings.TrimPrefix(expanded, base)
			}
		}
		return expanded
	}
	if canonical, err := filepath.EvalSymlinks(expanded); err == nil {
		if abs, err := filepath.Abs(canonical); err == nil {
			return abs
		}
		return canonical
	}
	if abs, err := filepath.Abs(expanded); err == nil {
		return abs
	}
	return expanded
}

// ContainsGlob reports whether the path uses glob metacharacters.
func ContainsGlob(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// TrimGlobSuffix removes trailing /** and /* segments, yielding the fixed
// directory prefix of a glob pattern.
func TrimGlobSuffix(path string) string {
	result := path
	for strings.HasSuffix(result, "/**") {
		result = result[:len(result)-3]
	}
	for strings.HasSuffix(result, "/*") {
		result = result[:len(result)-2]
	}
	return result
}

// BaseDir returns the deepest directory prefix of a pattern that contains
// no glob metacharacters. For a plain path the path itself is returned.
func BaseDir(pattern string) string {
	if !ContainsGlob(pattern) {
		return pattern
	}
	components := strings.Split(pattern, string(filepath.Separator))
	var base []string
	for _, c := range components {
		if ContainsGlob(c) {
			break
		}
		base = append(base, c)
	}
	joined := strings.Join(base, string(filepath.Separator))
	if joined == "" {
		if strings.HasPrefix(pattern, string(filepath.Separator)) {
			return string(filepath.Separator)
		}
		return "."
	}
	return joined
}

// EscapesBoundary reports whether a symlinked path resolves somewhere
// that would widen the rule beyond its stated boundary: the root
// directory, or an ancestor of the original path.
func EscapesBoundary(original, resolved string) bool {
	if resolved == string(filepath.Separator) {
		return true
	}
	if original != resolved && strings.HasPrefix(original, resolved+string(filepath.Separator)) {
		return true
	}
	return false
}

// Hierarchy returns every directory from the root down to path itself,
// in root-to-leaf order. Used when a mount target's parents must be
// created one component at a time.
func Hierarchy(path string) []string {
	path = filepath.Clean(path)
	if path == "/" || path == "." {
		return nil
	}

	var components []string
	for current := path; current != "/" && current != "."; current = filepath.Dir(current) {
		components = append(components, current)
	}

	for i, j := 0, len(components)-1; i < j; i, j = i+1, j-1 {
		components[i], components[j] = components[j], components[i]
	}
	return components
}
