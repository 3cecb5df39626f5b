// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/srt/lib/pathutil"
	"github.com/bureau-foundation/srt/lib/shellquote"
	"github.com/bureau-foundation/srt/policy"
)

// seatbeltBackend wraps commands in sandbox-exec with a synthesized
// SBPL profile.
type seatbeltBackend struct {
	logger *slog.Logger
}

func (b *seatbeltBackend) Name() string { return "seatbelt" }

func (b *seatbeltBackend) Supports(feature Feature) bool {
	switch feature {
	case FeaturePty, FeatureUnixSocketAllowlist, FeatureLogMonitor:
		return true
	default:
		return false
	}
}

func (b *seatbeltBackend) CheckDependencies() error {
	// sandbox-exec ships with macOS; only a broken install lacks it.
	if _, err := exec.LookPath("sandbox-exec"); err != nil {
		return fmt.Errorf("sandbox-exec not found: %w", err)
	}
	return nil
}

func (b *seatbeltBackend) Generate(p *policy.Policy, command string, opts GenerateOptions) (*Result, error) {
	shell := opts.Shell
	if shell == "" {
		shell = "/bin/bash"
	}

	profile := GenerateSeatbeltProfile(p, opts)

	profilePath := filepath.Join(os.TempDir(),
		fmt.Sprintf("srt-profile-%d-%s.sb", os.Getpid(), uuid.NewString()[:8]))
	if err := os.WriteFile(profilePath, []byte(profile), 0o600); err != nil {
		return nil, fmt.Errorf("write seatbelt profile: %w", err)
	}

	wrapped := fmt.Sprintf("sandbox-exec -f %s -D PROXY_HTTP=%d -D PROXY_SOCKS=%d %s -c %s",
		shellquote.Quote(profilePath),
		opts.HTTPProxyPort,
		opts.SocksProxyPort,
		shell,
		shellquote.Quote(command))

	b.logger.Debug("generated seatbelt command", "profile", profilePath)

	return &Result{Command: wrapped, ProfilePath: profilePath}, nil
}

// GenerateSeatbeltProfile synthesizes the SBPL profile text for a
// policy. Pure: the same inputs always yield the same profile.
func GenerateSeatbeltProfile(p *policy.Policy, opts GenerateOptions) string {
	var b strings.Builder

	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n\n")

	if opts.LogTag != "" {
		fmt.Fprintf(&b, "; Log tag: %s\n", opts.LogTag)
		fmt.Fprintf(&b, "(trace \"%s\")\n\n", opts.LogTag)
	}

	b.WriteString("; Process\n")
	b.WriteString("(allow process-exec)\n")
	b.WriteString("(allow process-fork)\n")
	b.WriteString("(allow process-info*)\n")
	b.WriteString("(allow process-codesigning-status*)\n\n")

	b.WriteString("; Signals\n")
	b.WriteString("(allow signal)\n\n")

	b.WriteString("; Sysctl\n")
	b.WriteString("(allow sysctl-read)\n\n")

	b.WriteString("; Mach services required by libSystem\n")
	b.WriteString("(allow mach-lookup)\n")
	b.WriteString("(allow mach-register)\n\n")

	b.WriteString("; IPC\n")
	b.WriteString("(allow ipc-posix*)\n")
	b.WriteString("(allow ipc-sysv*)\n\n")

	if p.AllowPty {
		b.WriteString("; PTY\n")
		b.WriteString("(allow pseudo-tty)\n")
		b.WriteString("(allow file-ioctl (regex #\"^/dev/ttys\"))\n\n")
	}

	b.WriteString("; Network\n")
	writeNetworkRules(&b, &p.Network, opts)
	b.WriteString("\n")

	b.WriteString("; Filesystem\n")
	writeFilesystemRules(&b, p)

	return b.String()
}

// writeNetworkRules emits the network section. With no domain policy at
// all, the proxies are advisory and the profile allows the network
// outright; otherwise outbound traffic is denied by default and only the
// loopback proxy ports (and any allowed Unix sockets) are reachable.
func writeNetworkRules(b *strings.Builder, network *policy.Network, opts GenerateOptions) {
	unrestricted := len(network.AllowedDomains) == 0 &&
		len(network.DeniedDomains) == 0 &&
		network.MitmProxy == nil
	if unrestricted {
		b.WriteString("(allow network*)\n")
		return
	}

	if opts.HTTPProxyPort > 0 {
		fmt.Fprintf(b, "(allow network-outbound (remote tcp \"localhost:%d\"))\n", opts.HTTPProxyPort)
	}
	if opts.SocksProxyPort > 0 {
		fmt.Fprintf(b, "(allow network-outbound (remote tcp \"localhost:%d\"))\n", opts.SocksProxyPort)
	}

	if network.AllowLocalBinding {
		b.WriteString("(allow network-bind (local ip \"localhost:*\"))\n")
		b.WriteString("(allow network-inbound (local ip \"localhost:*\"))\n")
	}

	for _, socket := range network.AllowUnixSockets {
		normalized := pathutil.Normalize(socket)
		fmt.Fprintf(b, "(allow network-outbound (literal \"%s\"))\n", escapeSeatbeltString(normalized))
	}

	// DNS stays open; domain policy is enforced at the proxies.
	b.WriteString("(allow network-outbound (remote udp \"*:53\"))\n")
	b.WriteString("(allow network-outbound (remote tcp \"*:53\"))\n")
	b.WriteString("(allow network-outbound (remote tcp \"*:853\"))\n")
}

// writeFilesystemRules emits read then write sections. Within each
// resource class denies follow allows so SBPL's last-match-wins ordering
// yields deny precedence.
func writeFilesystemRules(b *strings.Builder, p *policy.Policy) {
	fs := &p.Filesystem

	b.WriteString("; Read access (deny-only pattern)\n")
	b.WriteString("(allow file-read*)\n")
	for _, pattern := range fs.DenyRead {
		writeDenyRule(b, "file-read*", pattern)
	}
	b.WriteString("\n")

	b.WriteString("; Write access (allow-only pattern)\n")
	seen := make(map[string]bool)
	for _, pattern := range fs.AllowWrite {
		normalized := pathutil.Normalize(pattern)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		if pathutil.ContainsGlob(normalized) {
			for _, regex := range SeatbeltRegexes(normalized) {
				fmt.Fprintf(b, "(allow file-write* (regex #\"%s\"))\n", regex)
			}
		} else {
			fmt.Fprintf(b, "(allow file-write* (subpath \"%s\"))\n", escapeSeatbeltString(normalized))
		}
	}

	for _, pattern := range fs.DenyWrite {
		writeDenyRule(b, "file-write*", pattern)
	}

	b.WriteString("\n; Mandatory deny (dangerous files)\n")
	writeMandatoryDenyRules(b, fs)

	b.WriteString("\n; Block file moves/renames\n")
	b.WriteString("(deny file-write-unlink)\n")
}

// writeDenyRule emits one deny rule, as a regex for glob patterns or a
// subpath for plain paths.
func writeDenyRule(b *strings.Builder, operation, pattern string) {
	normalized := pathutil.Normalize(pattern)
	if pathutil.ContainsGlob(normalized) {
		for _, regex := range SeatbeltRegexes(normalized) {
			fmt.Fprintf(b, "(deny %s (regex #\"%s\"))\n", operation, regex)
		}
	} else {
		fmt.Fprintf(b, "(deny %s (subpath \"%s\"))\n", operation, escapeSeatbeltString(normalized))
	}
}

// writeMandatoryDenyRules emits the compile-time dangerous file and
// directory denies. File names match case-insensitively because macOS
// filesystems usually are.
func writeMandatoryDenyRules(b *strings.Builder, fs *policy.Filesystem) {
	for _, file := range policy.MandatoryDenyFiles {
		if fs.AllowGitConfig && file == ".gitconfig" {
			continue
		}
		fmt.Fprintf(b, "(deny file-write* (regex #\"^.*/%s$\"))\n", caseInsensitiveRegex(file))
	}

	for _, dir := range policy.MandatoryDenyDirectories {
		if fs.AllowGitConfig && dir == ".git" {
			// .git/config opens up; hooks stay protected via the
			// .git/hooks entry.
			continue
		}
		fmt.Fprintf(b, "(deny file-write* (regex #\"^.*/%s(/.*)?$\"))\n", regexp.QuoteMeta(dir))
	}

	if !fs.AllowGitConfig {
		b.WriteString("(deny file-write* (regex #\"^.*/\\.git/config$\"))\n")
	}
}

// caseInsensitiveRegex turns a file name into a character-class regex
// that matches either case, with dots escaped.
func caseInsensitiveRegex(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
			fmt.Fprintf(&b, "[%c%c]", c-('a'-'A'), c)
		case c >= 'A' && c <= 'Z':
			fmt.Fprintf(&b, "[%c%c]", c, c+('a'-'A'))
		case c == '.':
			b.WriteString("\\.")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// escapeSeatbeltString escapes backslashes and quotes for SBPL string
// literals.
func escapeSeatbeltString(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`)
}

// CleanupProfile removes a generated profile file; missing files are
// fine.
func CleanupProfile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove seatbelt profile", "path", path, "error", err)
	}
}
