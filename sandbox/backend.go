// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/bureau-foundation/srt/lib/platform"
	"github.com/bureau-foundation/srt/policy"
)

// Feature names a capability a backend may or may not support.
type Feature string

const (
	// FeatureSeccomp is syscall filtering via a BPF program.
	FeatureSeccomp Feature = "seccomp"
	// FeaturePty is pseudo-terminal allocation inside the sandbox.
	FeaturePty Feature = "pty"
	// FeatureUnixSocketAllowlist is per-path Unix socket policy.
	FeatureUnixSocketAllowlist Feature = "unix_socket_allowlist"
	// FeatureLogMonitor is kernel-log violation monitoring.
	FeatureLogMonitor Feature = "log_monitor"
	// FeatureNetworkBridges is socat Unix-socket bridging into the
	// network namespace.
	FeatureNetworkBridges Feature = "network_bridges"
)

// GenerateOptions carries the per-session inputs a backend needs beyond
// the policy.
type GenerateOptions struct {
	// WorkingDir is the directory the command runs in; must be
	// absolute.
	WorkingDir string

	// Shell interprets the user command; defaults to /bin/bash.
	Shell string

	// HTTPProxyPort and SocksProxyPort are the loopback ports the
	// filtering proxies listen on (as seen from the sandbox).
	HTTPProxyPort  int
	SocksProxyPort int

	// HTTPSocketPath and SocksSocketPath are the Unix sockets the
	// Linux bridges expose inside the network namespace. Empty on
	// macOS.
	HTTPSocketPath  string
	SocksSocketPath string

	// LogTag, when set, is embedded in the macOS profile so the log
	// monitor can attribute violations to this command.
	LogTag string
}

// Result is a generated wrapped command.
type Result struct {
	// Command is the complete shell string to execute.
	Command string

	// ProfilePath is the temporary Seatbelt profile file (macOS only);
	// the caller removes it on reset.
	ProfilePath string

	// Warnings are non-fatal policy translation notes (unsupported
	// glob patterns, missing paths).
	Warnings []string
}

// Backend generates platform-specific wrapped commands. Generate never
// runs the wrapped command; the Linux backend does run rg for
// dangerous-file discovery, and the macOS backend writes its profile file.
type Backend interface {
	// Name returns the backend name for logging.
	Name() string

	// Supports reports whether the backend implements a feature.
	Supports(feature Feature) bool

	// CheckDependencies verifies the host binaries the backend invokes
	// are present and usable.
	CheckDependencies() error

	// Generate wraps the user command according to the policy.
	Generate(p *policy.Policy, command string, opts GenerateOptions) (*Result, error)
}

// New selects the backend for the host platform. Returns an error on
// unsupported hosts, including WSL1 (no user namespaces).
func New(host platform.Platform, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch host {
	case platform.MacOS:
		return &seatbeltBackend{logger: logger}, nil
	case platform.Linux:
		if platform.WSLVersion() == "1" {
			return nil, fmt.Errorf("unsupported host: WSL1 lacks the user namespaces required for sandboxing")
		}
		return &bwrapBackend{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported host platform")
	}
}

// binaryAvailable probes for a host binary with a version flag.
func binaryAvailable(name string, arg string) bool {
	return exec.Command(name, arg).Run() == nil
}
