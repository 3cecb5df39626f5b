// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package violation

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/bureau-foundation/srt/lib/platform"
)

// Monitor tails platform sandbox logs, parses each line into a
// Violation, applies the policy's ignore filters, and appends to the
// store.
//
// On macOS the source is `log stream` filtered to the com.apple.sandbox
// subsystem; violations are attributed to commands via the log tag the
// profile generator embeds. On Linux there is no kernel log channel for
// bubblewrap denials, so the monitor instead parses lines handed to it
// from the wrapped command's stderr (bwrap and permission errors).
type Monitor struct {
	store   *Store
	logger  *slog.Logger
	ignores map[string][]*regexp.Regexp

	mu  sync.Mutex
	cmd *exec.Cmd
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Store  *Store
	Logger *slog.Logger

	// IgnoreViolations maps command-name patterns to violation regexes
	// to drop, straight from the policy.
	IgnoreViolations map[string][]string
}

// NewMonitor creates a monitor. Malformed ignore regexes are skipped
// with a warning rather than failing startup.
func NewMonitor(config MonitorConfig) *Monitor {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ignores := make(map[string][]*regexp.Regexp)
	for commandPattern, patterns := range config.IgnoreViolations {
		for _, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				logger.Warn("skipping malformed ignoreViolations regex",
					"command", commandPattern, "pattern", pattern, "error", err)
				continue
			}
			ignores[commandPattern] = append(ignores[commandPattern], re)
		}
	}

	return &Monitor{
		store:   config.Store,
		logger:  logger,
		ignores: ignores,
	}
}

// Start begins tailing the platform log stream. On macOS it spawns
// `log stream`; on Linux it is a no-op (violations arrive via
// ConsumeStderr). The monitor stops when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	if platform.Current() != platform.MacOS {
		return nil
	}

	cmd := exec.CommandContext(ctx, "log", "stream",
		"--predicate", `subsystem == "com.apple.sandbox"`,
		"--style", "compact")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cmd = cmd
	m.mu.Unlock()

	go func() {
		m.consume(stdout)
		cmd.Wait()
	}()

	return nil
}

// Stop terminates the log stream child, if any. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil && m.cmd.Process != nil {
		m.cmd.Process.Kill()
	}
	m.cmd = nil
}

// ConsumeStderr parses a wrapped command's stderr for sandbox denials.
// Used on Linux, where bubblewrap violations only surface as EACCES /
// EPERM messages from the sandboxed process itself.
func (m *Monitor) ConsumeStderr(command string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		v, ok := ParseStderrLine(line)
		if !ok {
			continue
		}
		v.Command = command
		m.record(v)
	}
}

func (m *Monitor) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		v, ok := ParseLogLine(line)
		if !ok {
			continue
		}
		m.record(v)
	}
}

func (m *Monitor) record(v Violation) {
	if m.ignored(v) {
		m.logger.Debug("dropping ignored violation", "kind", v.Kind, "subject", v.Subject)
		return
	}
	m.store.Add(v)
}

// ignored applies the policy's ignoreViolations filters: the command
// name must match the command pattern and the raw line must match one of
// its regexes.
func (m *Monitor) ignored(v Violation) bool {
	for commandPattern, regexes := range m.ignores {
		if !commandMatches(v.Command, commandPattern) {
			continue
		}
		for _, re := range regexes {
			if re.MatchString(v.Raw) {
				return true
			}
		}
	}
	return false
}

// commandMatches matches a command string against a command-name
// pattern, where * matches any run of characters.
func commandMatches(command, pattern string) bool {
	if pattern == "*" {
		return true
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return command == pattern || strings.HasPrefix(command, pattern+" ")
	}
	rest := command
	if !strings.HasPrefix(rest, parts[0]) {
		return false
	}
	rest = rest[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return strings.HasSuffix(rest, parts[len(parts)-1])
}

// ParseLogLine classifies a macOS sandbox log line into a Violation.
// Returns false for lines that are not denials.
func ParseLogLine(line string) (Violation, bool) {
	if !strings.Contains(line, "deny") {
		return Violation{}, false
	}

	v := Violation{Raw: line, Kind: Unknown, PolicyClause: "sandbox_log"}
	if command := DecodeLogTag(line); command != "" {
		v.Command = command
	}

	switch {
	case strings.Contains(line, "file-read"):
		v.Kind = FSReadDenied
	case strings.Contains(line, "file-write"):
		v.Kind = FSWriteDenied
	case strings.Contains(line, "network-outbound") && strings.Contains(line, ".sock"):
		v.Kind = UnixSocketDenied
	case strings.Contains(line, "network"):
		v.Kind = NetworkDenied
	}

	// The denied subject is the last token of the deny clause, e.g.
	// "deny file-write-create /private/tmp/x".
	fields := strings.Fields(line)
	for i, field := range fields {
		if strings.HasPrefix(field, "deny") && i+2 < len(fields) {
			v.Subject = fields[i+2]
			break
		}
	}

	return v, true
}

// ParseStderrLine classifies a stderr line from a sandboxed command.
// Permission-shaped errors and bwrap setup errors are treated as
// violations; other lines are ignored.
func ParseStderrLine(line string) (Violation, bool) {
	lower := strings.ToLower(line)
	v := Violation{Raw: line, Kind: Unknown, PolicyClause: "stderr"}

	switch {
	case strings.Contains(lower, "read-only file system"):
		v.Kind = FSWriteDenied
	case strings.Contains(lower, "permission denied"):
		if strings.Contains(lower, "connect") || strings.Contains(lower, "socket") {
			v.Kind = NetworkDenied
		} else {
			v.Kind = FSWriteDenied
		}
	case strings.Contains(lower, "network is unreachable"):
		v.Kind = NetworkDenied
	case strings.Contains(lower, "bwrap:"):
		// bwrap setup errors; keep them as unknown for diagnosis.
	default:
		return Violation{}, false
	}

	return v, true
}
