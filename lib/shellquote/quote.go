// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shellquote escapes strings for POSIX shell command lines.
//
// Wrapped sandbox commands are assembled as single shell strings that pass
// through sh -c, sandbox-exec, and bwrap, so every user-controlled fragment
// must be quoted before interpolation.
package shellquote

import "strings"

// Quote returns s escaped for use as a single shell word. Strings with no
// shell-special characters are returned unchanged; everything else is
// wrapped in single quotes with embedded single quotes escaped as '"'"'.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if !needsQuoting(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Join quotes each argument and joins them with spaces, producing a string
// safe to pass to sh -c.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = Quote(arg)
	}
	return strings.Join(quoted, " ")
}

func needsQuoting(s string) bool {
	return strings.ContainsAny(s, " \t\n\r\"'\\$`!*?[]{}()<>|&;#~")
}
