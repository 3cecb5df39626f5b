// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manager orchestrates the sandbox runtime: it owns the
// filtering proxies, the violation store and log monitor, the Linux
// bridge processes, and the dynamic-policy control channel, and it wraps
// user commands for the platform backend.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/srt/lib/platform"
	"github.com/bureau-foundation/srt/policy"
	"github.com/bureau-foundation/srt/proxy"
	"github.com/bureau-foundation/srt/sandbox"
	"github.com/bureau-foundation/srt/violation"
)

// drainGrace bounds how long Reset waits for in-flight proxy
// connections before forcing closure.
const drainGrace = 5 * time.Second

// Session describes one wrapped command. Sessions are ephemeral; the
// manager keeps only counters.
type Session struct {
	ID             string
	WorkingDir     string
	WrappedCommand string
	ProfilePath    string
	LogTag         string
	ExtraEnv       map[string]string
	Warnings       []string
}

// Config configures a Manager.
type Config struct {
	Logger *slog.Logger

	// ControlFD, when positive, is a file descriptor carrying
	// newline-delimited JSON control messages. Zero and -1 mean no control
	// channel; other negative values are rejected at Initialize with an
	// InvalidFd error.
	ControlFD int

	// ViolationCapacity overrides the violation ring size (0 = default).
	ViolationCapacity int
}

// Manager is the sandbox runtime's control point.
type Manager struct {
	logger    *slog.Logger
	controlFD int

	mu          sync.Mutex
	initialized bool
	fingerprint string
	policy      *policy.Policy
	backend     sandbox.Backend

	holder     *proxy.Holder
	httpProxy  *proxy.HTTPProxy
	socksProxy *proxy.SocksProxy
	httpPort   int
	socksPort  int

	bridges         []*sandbox.SocatBridge
	httpSocketPath  string
	socksSocketPath string

	store   *violation.Store
	monitor *violation.Monitor

	sessionSuffix string
	sessionCount  int
	profilePaths  []string

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New creates a Manager. Call Initialize before wrapping commands.
func New(config Config) *Manager {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	controlFD := config.ControlFD
	if controlFD == 0 {
		controlFD = -1 // zero value means "no control channel"
	}
	return &Manager{
		logger:        logger,
		controlFD:     controlFD,
		store:         violation.NewStore(config.ViolationCapacity),
		sessionSuffix: uuid.NewString()[:8],
	}
}

// Initialize validates the policy, starts the proxies on ephemeral
// loopback ports (or adopts externally managed ones), starts the log
// monitor and Linux bridges, publishes the first snapshot, and spawns
// the control reader when a control FD was configured.
//
// Initialize is idempotent: a second call with a policy whose
// fingerprint is unchanged is a no-op; a different policy is applied as
// UpdatePolicy without rebinding ports.
func (m *Manager) Initialize(p *policy.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	fingerprint, err := p.Fingerprint()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		if fingerprint == m.fingerprint {
			return nil
		}
		return m.updatePolicyLocked(p, fingerprint)
	}

	host := platform.Current()
	if !platform.Supported() {
		if host == platform.Linux {
			return fmt.Errorf("unsupported host: WSL1 lacks the namespaces required for sandboxing")
		}
		return fmt.Errorf("unsupported host platform %q", host.Name())
	}

	backend, err := sandbox.New(host, m.logger)
	if err != nil {
		return err
	}
	if err := backend.CheckDependencies(); err != nil {
		return err
	}

	if m.controlFD != -1 {
		if err := ValidateControlFD(m.controlFD); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	group, runCtx := errgroup.WithContext(runCtx)

	m.holder = proxy.NewHolder(proxy.NewSnapshot(p.Network))

	// External proxies take precedence; otherwise bind our own.
	if p.Network.HTTPProxyPort > 0 && p.Network.SocksProxyPort > 0 {
		m.httpPort = p.Network.HTTPProxyPort
		m.socksPort = p.Network.SocksProxyPort
	} else {
		httpProxy, err := proxy.NewHTTPProxy(m.holder, m.store, m.logger)
		if err != nil {
			cancel()
			return err
		}
		socksProxy, err := proxy.NewSocksProxy(m.holder, m.store, m.logger)
		if err != nil {
			httpProxy.Close()
			cancel()
			return err
		}
		m.httpProxy = httpProxy
		m.socksProxy = socksProxy
		m.httpPort = httpProxy.Port()
		m.socksPort = socksProxy.Port()

		group.Go(func() error {
			httpProxy.Serve(runCtx)
			return nil
		})
		group.Go(func() error {
			socksProxy.Serve(runCtx)
			return nil
		})
	}

	// Linux: Unix-socket bridges make the host proxies reachable from
	// inside the unshared network namespace.
	if backend.Supports(sandbox.FeatureNetworkBridges) {
		if err := m.startBridgesLocked(); err != nil {
			m.stopBridgesLocked()
			if m.httpProxy != nil {
				m.httpProxy.Close()
			}
			if m.socksProxy != nil {
				m.socksProxy.Close()
			}
			cancel()
			return err
		}
	}

	m.monitor = violation.NewMonitor(violation.MonitorConfig{
		Store:            m.store,
		Logger:           m.logger,
		IgnoreViolations: p.IgnoreViolations,
	})
	if backend.Supports(sandbox.FeatureLogMonitor) {
		if err := m.monitor.Start(runCtx); err != nil {
			m.logger.Warn("log monitor unavailable", "error", err)
		}
	}

	if m.controlFD >= 0 {
		fd := m.controlFD
		group.Go(func() error {
			return m.runControlReader(runCtx, fd)
		})
	}

	m.backend = backend
	m.policy = p
	m.fingerprint = fingerprint
	m.group = group
	m.cancel = cancel
	m.initialized = true

	m.logger.Info("sandbox manager initialized",
		"platform", host.Name(),
		"http_proxy_port", m.httpPort,
		"socks_proxy_port", m.socksPort,
	)
	return nil
}

// startBridgesLocked launches the host-side socat bridges.
func (m *Manager) startBridgesLocked() error {
	httpSocket := sandbox.GenerateSocketPath("srt-http")
	socksSocket := sandbox.GenerateSocketPath("srt-socks")

	httpBridge, err := sandbox.StartSocatBridge(httpSocket, m.httpPort, m.logger)
	if err != nil {
		return fmt.Errorf("start http bridge: %w", err)
	}
	m.bridges = append(m.bridges, httpBridge)
	m.httpSocketPath = httpSocket

	socksBridge, err := sandbox.StartSocatBridge(socksSocket, m.socksPort, m.logger)
	if err != nil {
		return fmt.Errorf("start socks bridge: %w", err)
	}
	m.bridges = append(m.bridges, socksBridge)
	m.socksSocketPath = socksSocket
	return nil
}

func (m *Manager) stopBridgesLocked() {
	for _, bridge := range m.bridges {
		bridge.Stop()
	}
	m.bridges = nil
	m.httpSocketPath = ""
	m.socksSocketPath = ""
}

// Initialized reports whether Initialize has completed.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// HTTPProxyPort returns the HTTP proxy's loopback port.
func (m *Manager) HTTPProxyPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.httpPort
}

// SocksProxyPort returns the SOCKS proxy's loopback port.
func (m *Manager) SocksProxyPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.socksPort
}

// Store returns the violation store.
func (m *Manager) Store() *violation.Store {
	return m.store
}

// Monitor returns the violation monitor, or nil before Initialize. The
// CLI feeds the wrapped command's stderr through it on Linux, where no
// kernel log channel exists.
func (m *Manager) Monitor() *violation.Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitor
}

// Policy returns the current policy snapshot.
func (m *Manager) Policy() *policy.Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// UpdatePolicy validates the new policy, rebuilds the proxy snapshot,
// and publishes it in a single atomic swap. Proxies in flight keep the
// snapshot they captured; every connection accepted after UpdatePolicy
// returns sees the new one.
func (m *Manager) UpdatePolicy(p *policy.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	fingerprint, err := p.Fingerprint()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return fmt.Errorf("sandbox manager not initialized")
	}
	if fingerprint == m.fingerprint {
		return nil
	}
	return m.updatePolicyLocked(p, fingerprint)
}

func (m *Manager) updatePolicyLocked(p *policy.Policy, fingerprint string) error {
	m.holder.Publish(proxy.NewSnapshot(p.Network))
	m.policy = p
	m.fingerprint = fingerprint

	// Rebuild the monitor's ignore filters with the new policy.
	m.monitor = violation.NewMonitor(violation.MonitorConfig{
		Store:            m.store,
		Logger:           m.logger,
		IgnoreViolations: p.IgnoreViolations,
	})

	m.logger.Info("sandbox policy updated")
	return nil
}

// WrapWithSandbox wraps a user command for the host sandbox. The user
// command is not executed (on Linux, rg runs for dangerous-file
// discovery; on macOS, the profile file is written). extraEnv rides along
// on the session for the caller to apply at exec time; the proxy
// variables from ProxyEnv always override it.
func (m *Manager) WrapWithSandbox(command, workingDir string, extraEnv map[string]string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("sandbox manager not initialized")
	}

	if workingDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		workingDir = cwd
	}

	opts := sandbox.GenerateOptions{
		WorkingDir:      workingDir,
		HTTPProxyPort:   m.httpPort,
		SocksProxyPort:  m.socksPort,
		HTTPSocketPath:  m.httpSocketPath,
		SocksSocketPath: m.socksSocketPath,
	}
	if m.backend.Supports(sandbox.FeatureLogMonitor) {
		opts.LogTag = violation.EncodeLogTag(command, m.sessionSuffix)
	}

	result, err := m.backend.Generate(m.policy, command, opts)
	if err != nil {
		return nil, fmt.Errorf("generate sandbox command: %w", err)
	}

	for _, warning := range result.Warnings {
		m.logger.Warn(warning)
	}
	if result.ProfilePath != "" {
		m.profilePaths = append(m.profilePaths, result.ProfilePath)
	}
	m.sessionCount++

	return &Session{
		ID:             uuid.NewString(),
		WorkingDir:     workingDir,
		WrappedCommand: result.Command,
		ProfilePath:    result.ProfilePath,
		LogTag:         opts.LogTag,
		ExtraEnv:       extraEnv,
		Warnings:       result.Warnings,
	}, nil
}

// SessionCount returns the number of commands wrapped so far.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionCount
}

// ProxyEnv returns the environment variables that point the child at
// the proxies. Caller-supplied extra environment must not override
// these.
func (m *Manager) ProxyEnv() map[string]string {
	m.mu.Lock()
	httpPort, socksPort := m.httpPort, m.socksPort
	m.mu.Unlock()

	httpProxy := fmt.Sprintf("http://127.0.0.1:%d", httpPort)
	socksProxy := fmt.Sprintf("socks5://127.0.0.1:%d", socksPort)
	return map[string]string{
		"HTTP_PROXY":  httpProxy,
		"http_proxy":  httpProxy,
		"HTTPS_PROXY": httpProxy,
		"https_proxy": httpProxy,
		"ALL_PROXY":   socksProxy,
		"all_proxy":   socksProxy,
		"NO_PROXY":    "localhost,127.0.0.1,::1",
		"GIT_SSH_COMMAND": fmt.Sprintf(
			"ssh -o ProxyCommand='nc -X 5 -x localhost:%d %%h %%p'", socksPort),
	}
}

// Reset cooperatively shuts everything down: listeners close, in-flight
// connections get a grace period, bridge children are killed and reaped,
// and temporary profiles are deleted. The manager can be initialized
// again afterwards.
func (m *Manager) Reset() {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return
	}

	cancel := m.cancel
	group := m.group
	httpProxy := m.httpProxy
	socksProxy := m.socksProxy
	monitor := m.monitor
	profilePaths := m.profilePaths

	m.httpProxy = nil
	m.socksProxy = nil
	m.httpPort = 0
	m.socksPort = 0
	m.monitor = nil
	m.policy = nil
	m.fingerprint = ""
	m.backend = nil
	m.profilePaths = nil
	m.sessionCount = 0
	m.initialized = false
	m.stopBridgesLocked()
	m.mu.Unlock()

	if httpProxy != nil {
		httpProxy.Close()
	}
	if socksProxy != nil {
		socksProxy.Close()
	}
	if monitor != nil {
		monitor.Stop()
	}
	if cancel != nil {
		cancel()
	}

	if httpProxy != nil && !httpProxy.Drain(drainGrace) {
		m.logger.Warn("http proxy connections still open after grace period")
	}
	if socksProxy != nil && !socksProxy.Drain(drainGrace) {
		m.logger.Warn("socks proxy connections still open after grace period")
	}

	if group != nil {
		group.Wait()
	}

	for _, path := range profilePaths {
		sandbox.CleanupProfile(path)
	}

	m.logger.Info("sandbox manager reset")
}
