// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/srt/lib/shellquote"
	"github.com/bureau-foundation/srt/policy"
)

// bwrapBackend wraps commands in a bubblewrap namespace sandbox.
type bwrapBackend struct {
	logger *slog.Logger
}

func (b *bwrapBackend) Name() string { return "bwrap" }

func (b *bwrapBackend) Supports(feature Feature) bool {
	switch feature {
	case FeatureSeccomp, FeatureNetworkBridges:
		return true
	default:
		return false
	}
}

func (b *bwrapBackend) CheckDependencies() error {
	if !binaryAvailable("bwrap", "--version") {
		return fmt.Errorf("bubblewrap (bwrap) is required for Linux sandboxing")
	}
	if !binaryAvailable("socat", "-V") {
		return fmt.Errorf("socat is required for Linux network sandboxing")
	}
	return nil
}

// Generate composes the bwrap argv and the inner command that starts the
// in-namespace socat bridges, exports the proxy environment, applies
// seccomp, and finally runs the user command.
func (b *bwrapBackend) Generate(p *policy.Policy, command string, opts GenerateOptions) (*Result, error) {
	shell := opts.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	if opts.WorkingDir == "" {
		return nil, fmt.Errorf("working directory is required")
	}

	mounts, warnings := GenerateBindMounts(p, opts.WorkingDir)

	args := []string{
		"bwrap",
		"--unshare-all",
		"--die-with-parent",
		// Everything visible read-only; writability is opt-in below.
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
	}

	// /tmp and /run are fresh unless the policy explicitly opens them.
	if !pathExplicitlyWritable(mounts, "/tmp") {
		args = append(args, "--tmpfs", "/tmp")
	}
	args = append(args, "--tmpfs", "/run")

	for _, mount := range mounts {
		args = append(args, mount.Args()...)
	}

	args = append(args, "--chdir", opts.WorkingDir)

	inner, innerWarnings := buildInnerCommand(p, command, shell, opts, b.logger)
	warnings = append(warnings, innerWarnings...)

	args = append(args, "--", shell, "-c", inner)

	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = shellquote.Quote(arg)
	}

	b.logger.Debug("generated bwrap command", "mounts", len(mounts))

	return &Result{
		Command:  strings.Join(quoted, " "),
		Warnings: warnings,
	}, nil
}

// pathExplicitlyWritable reports whether a writable mount covers path
// itself. Writable binds below the path do not count: they re-surface
// through any tmpfs placed on it, since bind sources come from the host
// filesystem.
func pathExplicitlyWritable(mounts []BindMount, path string) bool {
	for _, mount := range mounts {
		if mount.Kind != MountWritable {
			continue
		}
		if mount.Path == path || strings.HasPrefix(path, mount.Path+"/") {
			return true
		}
	}
	return false
}

// buildInnerCommand assembles the command run inside the namespace:
// socat bridges to the host proxies, a settle delay, proxy environment
// exports, optional seccomp application, then the user command.
func buildInnerCommand(p *policy.Policy, command, shell string, opts GenerateOptions, logger *slog.Logger) (string, []string) {
	var parts []string
	var warnings []string

	if opts.HTTPSocketPath != "" {
		parts = append(parts, TCPToUnixCommand(opts.HTTPProxyPort, opts.HTTPSocketPath)+" &")
	}
	if opts.SocksSocketPath != "" {
		parts = append(parts, TCPToUnixCommand(opts.SocksProxyPort, opts.SocksSocketPath)+" &")
	}
	if opts.HTTPSocketPath != "" || opts.SocksSocketPath != "" {
		parts = append(parts, "sleep 0.1")
	}

	env := proxyEnvExports(opts.HTTPProxyPort, opts.SocksProxyPort)

	if !p.Network.AllowAllUnixSockets {
		bpfPath, applyPath, err := ResolveSeccomp(p.Seccomp)
		if err == nil {
			parts = append(parts, env)
			parts = append(parts, fmt.Sprintf("%s %s %s -c %s",
				shellquote.Quote(applyPath),
				shellquote.Quote(bpfPath),
				shell,
				shellquote.Quote(command)))
			return strings.Join(parts, " ; "), warnings
		}
		warnings = append(warnings, "seccomp filter unavailable; Unix socket creation will not be blocked")
		logger.Warn("seccomp unavailable, running without AF_UNIX block", "error", err)
	}

	parts = append(parts, env)
	parts = append(parts, fmt.Sprintf("%s -c %s", shell, shellquote.Quote(command)))
	return strings.Join(parts, " ; "), warnings
}

// proxyEnvExports builds the in-namespace export line pointing every
// proxy-aware tool at the loopback bridge listeners.
func proxyEnvExports(httpPort, socksPort int) string {
	httpProxy := fmt.Sprintf("http://localhost:%d", httpPort)
	socksProxy := fmt.Sprintf("socks5://localhost:%d", socksPort)
	return fmt.Sprintf(
		"export http_proxy='%s' https_proxy='%s' HTTP_PROXY='%s' HTTPS_PROXY='%s' ALL_PROXY='%s' all_proxy='%s' NO_PROXY='localhost,127.0.0.1,::1'",
		httpProxy, httpProxy, httpProxy, httpProxy, socksProxy, socksProxy)
}
