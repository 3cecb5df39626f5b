// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SocatBridge is a host-side socat child that listens on a Unix socket
// and forwards each connection to a host TCP port. The socket is
// bind-mounted into the sandbox's network namespace; a second socat
// inside the namespace connects the sandbox's loopback ports back out to
// it.
type SocatBridge struct {
	cmd        *exec.Cmd
	socketPath string
	logger     *slog.Logger
}

// StartSocatBridge launches the host-side bridge process. The socket
// file is replaced if it already exists.
func StartSocatBridge(socketPath string, tcpPort int, logger *slog.Logger) (*SocatBridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale bridge socket: %w", err)
	}

	cmd := exec.Command("socat",
		fmt.Sprintf("UNIX-LISTEN:%s,fork", socketPath),
		fmt.Sprintf("TCP:localhost:%d", tcpPort))
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
			return nil, fmt.Errorf("socat not found; install socat for Linux network sandboxing")
		}
		return nil, fmt.Errorf("start socat bridge: %w", err)
	}

	// Give socat a moment to create the socket before bwrap tries to
	// bind-mount it.
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	logger.Debug("socat bridge started", "socket", socketPath, "port", tcpPort, "pid", cmd.Process.Pid)

	return &SocatBridge{cmd: cmd, socketPath: socketPath, logger: logger}, nil
}

// SocketPath returns the Unix socket the bridge listens on.
func (b *SocatBridge) SocketPath() string {
	return b.socketPath
}

// Stop kills and reaps the bridge child and removes its socket.
// Idempotent.
func (b *SocatBridge) Stop() {
	if b.cmd != nil && b.cmd.Process != nil {
		b.cmd.Process.Kill()
		b.cmd.Wait()
		b.cmd = nil
	}
	if err := os.Remove(b.socketPath); err != nil && !os.IsNotExist(err) {
		b.logger.Debug("failed to remove bridge socket", "socket", b.socketPath, "error", err)
	}
}

// TCPToUnixCommand renders the in-namespace socat invocation that
// listens on a loopback port and forwards to the bridge socket.
func TCPToUnixCommand(tcpPort int, socketPath string) string {
	return fmt.Sprintf("socat TCP-LISTEN:%d,fork,reuseaddr UNIX-CONNECT:%s", tcpPort, socketPath)
}

// GenerateSocketPath returns a unique bridge socket path in the system
// temp directory (os.TempDir).
func GenerateSocketPath(prefix string) string {
	return filepath.Join(os.TempDir(),
		fmt.Sprintf("%s-%d-%s.sock", prefix, os.Getpid(), uuid.NewString()[:8]))
}
