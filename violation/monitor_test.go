// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package violation

import (
	"strings"
	"testing"
)

func TestLogTagRoundTrip(t *testing.T) {
	tag := EncodeLogTag("echo hello", "12345678")
	if !strings.HasPrefix(tag, "CMD64_") {
		t.Errorf("tag = %q", tag)
	}
	if !strings.Contains(tag, "_END_12345678") {
		t.Errorf("tag = %q", tag)
	}

	if got := DecodeLogTag("some log line " + tag + " trailing"); got != "echo hello" {
		t.Errorf("DecodeLogTag = %q", got)
	}
}

func TestDecodeLogTagMissing(t *testing.T) {
	if got := DecodeLogTag("no tag here"); got != "" {
		t.Errorf("DecodeLogTag = %q, want empty", got)
	}
	if got := DecodeLogTag("CMD64_!!!invalid!!!_END_x"); got != "" {
		t.Errorf("DecodeLogTag invalid base64 = %q, want empty", got)
	}
}

func TestParseLogLine(t *testing.T) {
	tests := []struct {
		line string
		kind Kind
		ok   bool
	}{
		{"sandbox: deny file-read-data /etc/master.passwd", FSReadDenied, true},
		{"sandbox: deny file-write-create /private/tmp/x", FSWriteDenied, true},
		{"sandbox: deny network-outbound /private/var/run/mDNSResponder.sock", UnixSocketDenied, true},
		{"sandbox: deny network-outbound 1.2.3.4:443", NetworkDenied, true},
		{"sandbox: allow file-read-data /usr/lib/dyld", Unknown, false},
		{"unrelated chatter", Unknown, false},
	}

	for _, tt := range tests {
		v, ok := ParseLogLine(tt.line)
		if ok != tt.ok {
			t.Errorf("ParseLogLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && v.Kind != tt.kind {
			t.Errorf("ParseLogLine(%q) kind = %v, want %v", tt.line, v.Kind, tt.kind)
		}
	}
}

func TestParseLogLineSubject(t *testing.T) {
	v, ok := ParseLogLine("sandbox: deny file-write-create /private/tmp/x")
	if !ok {
		t.Fatal("expected a violation")
	}
	if v.Subject != "/private/tmp/x" {
		t.Errorf("subject = %q", v.Subject)
	}
}

func TestParseLogLineCommandAttribution(t *testing.T) {
	tag := EncodeLogTag("curl https://evil.com", "deadbeef")
	v, ok := ParseLogLine("sandbox: deny network-outbound 1.2.3.4:443 " + tag)
	if !ok {
		t.Fatal("expected a violation")
	}
	if v.Command != "curl https://evil.com" {
		t.Errorf("command = %q", v.Command)
	}
}

func TestParseStderrLine(t *testing.T) {
	tests := []struct {
		line string
		kind Kind
		ok   bool
	}{
		{"touch: cannot touch '/etc/x': Read-only file system", FSWriteDenied, true},
		{"sh: /etc/x: Permission denied", FSWriteDenied, true},
		{"curl: (7) Failed to connect: Permission denied", NetworkDenied, true},
		{"connect: Network is unreachable", NetworkDenied, true},
		{"bwrap: Can't mkdir /foo: Permission denied", FSWriteDenied, true},
		{"ordinary output line", Unknown, false},
	}

	for _, tt := range tests {
		v, ok := ParseStderrLine(tt.line)
		if ok != tt.ok {
			t.Errorf("ParseStderrLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && v.Kind != tt.kind {
			t.Errorf("ParseStderrLine(%q) kind = %v, want %v", tt.line, v.Kind, tt.kind)
		}
	}
}

func TestIgnoreFilters(t *testing.T) {
	store := NewStore(0)
	monitor := NewMonitor(MonitorConfig{
		Store: store,
		IgnoreViolations: map[string][]string{
			"npm*": {`node_modules`},
		},
	})

	// Matching command and matching regex: dropped.
	monitor.record(Violation{
		Kind:    FSWriteDenied,
		Raw:     "deny file-write-create /repo/node_modules/x",
		Command: "npm install",
	})
	if store.Count() != 0 {
		t.Error("matching violation should have been dropped")
	}

	// Matching command, non-matching line: recorded.
	monitor.record(Violation{
		Kind:    FSWriteDenied,
		Raw:     "deny file-write-create /etc/passwd",
		Command: "npm install",
	})
	if store.Count() != 1 {
		t.Error("non-matching violation should have been recorded")
	}

	// Non-matching command: recorded.
	monitor.record(Violation{
		Kind:    FSWriteDenied,
		Raw:     "deny file-write-create /repo/node_modules/x",
		Command: "make",
	})
	if store.Count() != 2 {
		t.Error("violation from other command should have been recorded")
	}
}

func TestConsumeStderr(t *testing.T) {
	store := NewStore(0)
	monitor := NewMonitor(MonitorConfig{Store: store})

	stderr := strings.NewReader(
		"building...\n" +
			"touch: cannot touch '/etc/x': Read-only file system\n" +
			"done\n")
	monitor.ConsumeStderr("make", stderr)

	if store.Count() != 1 {
		t.Fatalf("Count = %d, want 1", store.Count())
	}
	v := store.Violations(0)[0]
	if v.Kind != FSWriteDenied || v.Command != "make" {
		t.Errorf("violation = %+v", v)
	}
}

func TestCommandMatches(t *testing.T) {
	tests := []struct {
		command string
		pattern string
		want    bool
	}{
		{"npm install", "npm*", true},
		{"npm", "npm", true},
		{"npm install", "npm", true},
		{"npx foo", "npm", false},
		{"anything", "*", true},
		{"git push", "*push", true},
		{"git pull", "*push", false},
	}
	for _, tt := range tests {
		if got := commandMatches(tt.command, tt.pattern); got != tt.want {
			t.Errorf("commandMatches(%q, %q) = %v, want %v", tt.command, tt.pattern, got, tt.want)
		}
	}
}
