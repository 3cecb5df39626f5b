// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/srt/lib/pathutil"
)

// GlobToSeatbeltRegex converts a glob pattern into an anchored regex in
// the dialect Seatbelt profiles accept.
//
// Conversion rules:
//   - `*` matches any characters except `/`
//   - `**` matches any characters including `/`
//   - `**/` matches zero or more whole directories
//   - `?` matches a single character except `/`
//   - `{a,b}` becomes the alternation `(a|b)`
//   - `[...]` character classes pass through with brackets preserved
//   - regex metacharacters are escaped
//
// The function is deterministic and touches nothing outside its input.
func GlobToSeatbeltRegex(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) * 2)
	b.WriteByte('^')

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '.', '^', '$', '+', '|', '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteRune(c)

		case '[':
			// Copy the character class as-is.
			b.WriteByte('[')
			i++
			for i < len(runes) && runes[i] != ']' {
				b.WriteRune(runes[i])
				i++
			}
			if i < len(runes) {
				b.WriteByte(']')
			}

		case '{':
			b.WriteByte('(')
			i++
			for i < len(runes) && runes[i] != '}' {
				if runes[i] == ',' {
					b.WriteByte('|')
				} else {
					b.WriteRune(runes[i])
				}
				i++
			}
			b.WriteByte(')')

		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				if i+2 < len(runes) && runes[i+2] == '/' {
					b.WriteString("(.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
			} else {
				b.WriteString("[^/]*")
			}

		case '?':
			b.WriteString("[^/]")

		default:
			b.WriteRune(c)
		}
	}

	b.WriteByte('$')
	return b.String()
}

// SeatbeltRegexes translates one policy pattern into the regex list for
// a profile rule. A trailing slash denotes a directory rule and expands
// to both the exact directory and everything beneath it.
func SeatbeltRegexes(pattern string) []string {
	if trimmed, ok := strings.CutSuffix(pattern, "/"); ok && trimmed != "" {
		base := GlobToSeatbeltRegex(trimmed)
		return []string{base, strings.TrimSuffix(base, "$") + "/.*$"}
	}
	return []string{GlobToSeatbeltRegex(pattern)}
}

// ExpandGlobLiteral expands a glob pattern against the live filesystem
// for bind-mount generation. Patterns that match nothing are a no-op,
// not an error, because bubblewrap binds cannot be wildcarded. Hidden
// entries are included only when the pattern spells out a `.` segment;
// unlike plain filepath.Glob, whose `*` also matches dotfiles, hidden
// entries are filtered out otherwise.
func ExpandGlobLiteral(pattern string) []string {
	if !pathutil.ContainsGlob(pattern) {
		return []string{pattern}
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		// Malformed patterns were rejected at validation; a residual
		// error here degrades to a no-op.
		return nil
	}

	includeHidden := patternNamesHidden(pattern)
	var out []string
	for _, match := range matches {
		if !includeHidden && isHidden(match) {
			continue
		}
		out = append(out, match)
	}
	return out
}

// patternNamesHidden reports whether any pattern segment explicitly
// begins with a dot.
func patternNamesHidden(pattern string) bool {
	for _, segment := range strings.Split(pattern, "/") {
		if strings.HasPrefix(segment, ".") && segment != "." && segment != ".." {
			return true
		}
	}
	return false
}

// isHidden reports whether the final path segment is a dotfile.
func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

// expandGlobDirs expands a pattern and keeps only paths that exist,
// trimming trailing glob suffixes first so `/tmp/**` expands to `/tmp`
// rather than its contents.
func expandGlobDirs(pattern string) []string {
	trimmed := pathutil.TrimGlobSuffix(pattern)
	if !pathutil.ContainsGlob(trimmed) {
		if _, err := os.Stat(trimmed); err == nil {
			return []string{trimmed}
		}
		return nil
	}
	var out []string
	for _, match := range ExpandGlobLiteral(trimmed) {
		if _, err := os.Stat(match); err == nil {
			out = append(out, match)
		}
	}
	return out
}
