// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/srt/policy"
	"github.com/bureau-foundation/srt/violation"
)

// The control channel carries newline-delimited JSON over a file
// descriptor handed to us at startup. Requests update the policy, query
// recorded violations, or shut the runtime down; every request gets a
// one-line JSON response on the same descriptor.

// controlRequest is one inbound control message.
type controlRequest struct {
	Type   string          `json:"type"`
	What   string          `json:"what,omitempty"`
	Policy json.RawMessage `json:"policy,omitempty"`
}

// controlResponse is the reply to a control message. Error payloads
// expose only kind and message; nothing sensitive crosses the channel.
type controlResponse struct {
	OK         bool                  `json:"ok"`
	Error      *controlError         `json:"error,omitempty"`
	Violations []violation.Violation `json:"violations,omitempty"`
	Dropped    int                   `json:"dropped,omitempty"`
}

type controlError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ValidateControlFD rejects descriptors that are negative or not open.
func ValidateControlFD(fd int) error {
	if fd < 0 {
		return fmt.Errorf("InvalidFd: control fd must be non-negative, got %d", fd)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return fmt.Errorf("InvalidFd: control fd %d is not open: %w", fd, err)
	}
	return nil
}

// runControlReader consumes control messages until the descriptor hits
// EOF, a shutdown request arrives, or ctx is cancelled by Reset.
func (m *Manager) runControlReader(ctx context.Context, fd int) error {
	if err := ValidateControlFD(fd); err != nil {
		return err
	}

	file := fdFile(fd)
	// Closing the file unblocks the scanner when Reset cancels us.
	go func() {
		<-ctx.Done()
		file.Close()
	}()

	m.logger.Debug("control channel listening", "fd", fd)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}

		response, shutdown := m.handleControlLine(line)
		encoded, err := json.Marshal(response)
		if err == nil {
			file.Write(append(encoded, '\n'))
		}

		if shutdown {
			m.logger.Info("shutdown requested over control channel")
			go m.Reset()
			return nil
		}
	}
	return nil
}

// handleControlLine dispatches one control message.
func (m *Manager) handleControlLine(line string) (controlResponse, bool) {
	var request controlRequest
	if err := json.Unmarshal([]byte(line), &request); err != nil {
		return errorResponse("protocol", "malformed control message"), false
	}

	switch request.Type {
	case "update":
		updated, err := policy.Parse(request.Policy)
		if err != nil {
			m.logger.Warn("rejected control policy update", "error", err)
			return errorResponse("policy", err.Error()), false
		}
		if err := m.UpdatePolicy(updated); err != nil {
			return errorResponse("policy", err.Error()), false
		}
		return controlResponse{OK: true}, false

	case "query":
		if request.What != "violations" {
			return errorResponse("protocol", fmt.Sprintf("unknown query %q", request.What)), false
		}
		return controlResponse{
			OK:         true,
			Violations: m.store.Violations(0),
			Dropped:    m.store.Dropped(),
		}, false

	case "shutdown":
		return controlResponse{OK: true}, true

	default:
		return errorResponse("protocol", fmt.Sprintf("unknown request type %q", request.Type)), false
	}
}

// fdFile wraps a raw descriptor for buffered reading and writing.
func fdFile(fd int) *os.File {
	return os.NewFile(uintptr(fd), fmt.Sprintf("control-fd-%d", fd))
}

func errorResponse(kind, message string) controlResponse {
	return controlResponse{
		OK:    false,
		Error: &controlError{Kind: kind, Message: message},
	}
}
