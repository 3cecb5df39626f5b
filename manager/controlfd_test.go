// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/srt/violation"
)

func testViolation(subject string) violation.Violation {
	return violation.Violation{Kind: violation.NetworkDenied, Subject: subject}
}

func TestValidateControlFD(t *testing.T) {
	if err := ValidateControlFD(-1); err == nil {
		t.Error("negative fd should be rejected")
	}
	if err := ValidateControlFD(-42); err == nil {
		t.Error("negative fd should be rejected")
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	if err := ValidateControlFD(int(r.Fd())); err != nil {
		t.Errorf("open fd rejected: %v", err)
	}
}

func TestValidateControlFDClosed(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	w.Close()
	fd := int(r.Fd())
	r.Close()

	if err := ValidateControlFD(fd); err == nil {
		t.Error("closed fd should be rejected")
	}
	if err := ValidateControlFD(fd); err != nil && !strings.Contains(err.Error(), "InvalidFd") {
		t.Errorf("error should name InvalidFd: %v", err)
	}
}

func TestHandleControlLineMalformed(t *testing.T) {
	m := New(Config{})
	response, shutdown := m.handleControlLine("not json")
	if response.OK || shutdown {
		t.Errorf("malformed line: ok=%v shutdown=%v", response.OK, shutdown)
	}
	if response.Error == nil || response.Error.Kind != "protocol" {
		t.Errorf("error = %+v", response.Error)
	}
}

func TestHandleControlLineUnknownType(t *testing.T) {
	m := New(Config{})
	response, _ := m.handleControlLine(`{"type":"frobnicate"}`)
	if response.OK {
		t.Error("unknown type should fail")
	}
}

func TestHandleControlLineQueryViolations(t *testing.T) {
	m := New(Config{})
	m.store.Add(testViolation("evil.com:443"))

	response, shutdown := m.handleControlLine(`{"type":"query","what":"violations"}`)
	if !response.OK || shutdown {
		t.Fatalf("query failed: %+v", response)
	}
	if len(response.Violations) != 1 || response.Violations[0].Subject != "evil.com:443" {
		t.Errorf("violations = %+v", response.Violations)
	}
}

func TestHandleControlLineUnknownQuery(t *testing.T) {
	m := New(Config{})
	response, _ := m.handleControlLine(`{"type":"query","what":"everything"}`)
	if response.OK {
		t.Error("unknown query should fail")
	}
}

func TestHandleControlLineShutdown(t *testing.T) {
	m := New(Config{})
	response, shutdown := m.handleControlLine(`{"type":"shutdown"}`)
	if !response.OK || !shutdown {
		t.Errorf("shutdown: ok=%v shutdown=%v", response.OK, shutdown)
	}
}

func TestHandleControlLineUpdateInvalidPolicy(t *testing.T) {
	m := New(Config{})
	response, _ := m.handleControlLine(`{"type":"update","policy":{"network":{"allowedDomains":["*"]}}}`)
	if response.OK {
		t.Error("invalid policy update should fail")
	}
	if response.Error == nil || response.Error.Kind != "policy" {
		t.Errorf("error = %+v", response.Error)
	}
}

func TestControlChannelEndToEnd(t *testing.T) {
	requireSandboxDeps(t)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	clientFile := os.NewFile(uintptr(fds[0]), "client")
	defer clientFile.Close()

	m := New(Config{ControlFD: fds[1]})
	p := validPolicy(t, `{"network": {"allowedDomains": ["github.com"]}}`)
	if err := m.Initialize(p); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Reset)

	reader := bufio.NewReader(clientFile)
	send := func(line string) controlResponse {
		t.Helper()
		if _, err := clientFile.WriteString(line + "\n"); err != nil {
			t.Fatal(err)
		}
		raw, err := reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		var response controlResponse
		if err := json.Unmarshal([]byte(raw), &response); err != nil {
			t.Fatalf("bad response %q: %v", raw, err)
		}
		return response
	}

	// Update the policy over the channel.
	response := send(`{"type":"update","policy":{"network":{"allowedDomains":["gitlab.com"]}}}`)
	if !response.OK {
		t.Fatalf("update failed: %+v", response.Error)
	}

	// The manager applied it.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if current := m.Policy(); current != nil &&
			len(current.Network.AllowedDomains) == 1 &&
			current.Network.AllowedDomains[0] == "gitlab.com" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if m.Policy().Network.AllowedDomains[0] != "gitlab.com" {
		t.Error("control update not applied")
	}

	// Query violations: record one, then ask.
	m.store.Add(testViolation("blocked.example:443"))
	response = send(`{"type":"query","what":"violations"}`)
	if !response.OK || len(response.Violations) == 0 {
		t.Fatalf("query response = %+v", response)
	}

	// Shutdown request resets the manager.
	response = send(`{"type":"shutdown"}`)
	if !response.OK {
		t.Fatalf("shutdown failed: %+v", response.Error)
	}
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && m.Initialized() {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Initialized() {
		t.Error("manager still initialized after control shutdown")
	}
}

func TestControlFDRejectedAtInitialize(t *testing.T) {
	requireSandboxDeps(t)

	m := New(Config{ControlFD: -5})
	err := m.Initialize(validPolicy(t, `{}`))
	if err == nil {
		m.Reset()
		t.Fatal("negative control fd should be fatal at initialize")
	}
}
