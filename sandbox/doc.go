// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox generates the platform-specific wrapped commands that
// run a user command inside a kernel-enforced sandbox.
//
// The central type is [Backend], a capability interface with two
// implementations selected by host OS at construction time. The macOS
// backend synthesizes an SBPL (Seatbelt) text profile and wraps the
// command in sandbox-exec; the Linux backend composes a bubblewrap argv
// with namespace flags and bind mounts, plus socat bridge fragments that
// make the host-side proxies reachable from inside the unshared network
// namespace.
//
// Generate returns a single shell-escaped command string and never runs
// the wrapped command itself; the Linux backend does exec rg to discover
// dangerous files.
// Filesystem policy reaches the backends as glob patterns; the
// [GlobToSeatbeltRegex] translator turns them into anchored Seatbelt
// regexes on macOS, while [ExpandGlobLiteral] expands them best-effort
// against the live filesystem on Linux, because bubblewrap binds cannot
// be wildcarded. Deny always dominates: within each Seatbelt resource
// class denies are emitted after allows (SBPL is last-match-wins), and on
// Linux denies are realized as the absence of binds plus read-only and
// tmpfs masks layered over any writable mounts.
//
// The mandatory-deny union from the policy package is folded into every
// generated profile and argv; no user policy can produce a sandbox that
// writes to shell rc files, git hooks, or the rest of the dangerous set.
package sandbox
