// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy defines the declarative sandbox policy: which domains a
// sandboxed process may reach, which filesystem paths it may read and
// write, and the platform knobs (seccomp, PTY, unix sockets) that shape
// the generated sandbox.
//
// A [Policy] is an immutable snapshot. The manager validates it once via
// [Policy.Validate], which also computes the mandatory-deny union — a
// compile-time set of dotfiles and directories (shell rc files, git hooks,
// editor configuration) whose write protection no user policy can relax.
// Dynamic reconfiguration replaces the whole snapshot; nothing mutates a
// validated policy in place.
package policy

// MitmProxy routes matching domains through a trusted inspection endpoint
// reachable as a Unix-domain socket.
type MitmProxy struct {
	// SocketPath is the Unix socket of the MITM upstream.
	SocketPath string `json:"socketPath" yaml:"socketPath"`
	// Domains selects which hostnames are routed through it.
	Domains []string `json:"domains" yaml:"domains"`
}

// Network holds the network restriction policy.
type Network struct {
	// AllowedDomains lists domain patterns permitted outbound access
	// (e.g. "github.com", "*.npmjs.org"). Empty means all domains are
	// allowed, subject to DeniedDomains.
	AllowedDomains []string `json:"allowedDomains" yaml:"allowedDomains"`

	// DeniedDomains lists domain patterns denied outbound access.
	// Denies take precedence over every other rule.
	DeniedDomains []string `json:"deniedDomains" yaml:"deniedDomains"`

	// AllowUnixSockets lists absolute socket paths the sandbox may
	// connect to (macOS only).
	AllowUnixSockets []string `json:"allowUnixSockets" yaml:"allowUnixSockets"`

	// AllowAllUnixSockets disables the seccomp AF_UNIX block (Linux only).
	AllowAllUnixSockets bool `json:"allowAllUnixSockets" yaml:"allowAllUnixSockets"`

	// AllowLocalBinding permits binding loopback listening ports.
	AllowLocalBinding bool `json:"allowLocalBinding" yaml:"allowLocalBinding"`

	// HTTPProxyPort and SocksProxyPort point at externally managed
	// proxies. When both are set, the manager does not start its own; it
	// only emits the proxy environment variables. When only one is set,
	// it is ignored and the manager starts both of its own proxies.
	HTTPProxyPort  int `json:"httpProxyPort" yaml:"httpProxyPort"`
	SocksProxyPort int `json:"socksProxyPort" yaml:"socksProxyPort"`

	// MitmProxy, when present, routes its domains through the MITM
	// upstream instead of tunneling directly.
	MitmProxy *MitmProxy `json:"mitmProxy" yaml:"mitmProxy"`
}

// Filesystem holds the filesystem restriction policy. Writes are denied
// by default; AllowWrite opens paths up and DenyWrite re-closes them with
// higher priority.
type Filesystem struct {
	// DenyRead lists glob patterns denied for reading.
	DenyRead []string `json:"denyRead" yaml:"denyRead"`

	// AllowWrite lists glob patterns allowed for writing.
	AllowWrite []string `json:"allowWrite" yaml:"allowWrite"`

	// DenyWrite lists glob patterns denied for writing. Overrides
	// AllowWrite.
	DenyWrite []string `json:"denyWrite" yaml:"denyWrite"`

	// AllowGitConfig removes .gitconfig and the whole .git directory
	// from the mandatory-deny set, so .git/config and everything else
	// under .git become writable where AllowWrite permits; .git/hooks
	// stays protected.
	AllowGitConfig bool `json:"allowGitConfig" yaml:"allowGitConfig"`
}

// Ripgrep configures the rg invocation used for dangerous-file discovery
// on Linux.
type Ripgrep struct {
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
}

// Seccomp points at a custom BPF filter and the helper binary that
// applies it before exec'ing the sandboxed command.
type Seccomp struct {
	BPFPath   string `json:"bpfPath" yaml:"bpfPath"`
	ApplyPath string `json:"applyPath" yaml:"applyPath"`
}

// DefaultMandatoryDenySearchDepth bounds the dangerous-file scan under
// the working directory.
const DefaultMandatoryDenySearchDepth = 3

// Policy is the full sandbox runtime policy.
type Policy struct {
	Network    Network    `json:"network" yaml:"network"`
	Filesystem Filesystem `json:"filesystem" yaml:"filesystem"`

	// IgnoreViolations maps command-name patterns to violation regexes
	// that should be dropped instead of recorded.
	IgnoreViolations map[string][]string `json:"ignoreViolations" yaml:"ignoreViolations"`

	// EnableWeakerNestedSandbox skips the nested-sandbox re-entry check
	// and lets the child start another sandbox of its own.
	EnableWeakerNestedSandbox bool `json:"enableWeakerNestedSandbox" yaml:"enableWeakerNestedSandbox"`

	// Ripgrep overrides the rg command used for dangerous-file discovery.
	Ripgrep *Ripgrep `json:"ripgrep" yaml:"ripgrep"`

	// MandatoryDenySearchDepth bounds the dangerous-file scan. Negative
	// values are rejected at validation; zero means the default.
	MandatoryDenySearchDepth int `json:"mandatoryDenySearchDepth" yaml:"mandatoryDenySearchDepth"`

	// AllowPty permits pseudo-terminal allocation (macOS only).
	AllowPty bool `json:"allowPty" yaml:"allowPty"`

	// Seccomp points at a custom filter. When set, both fields are
	// required.
	Seccomp *Seccomp `json:"seccomp" yaml:"seccomp"`

	// mandatoryDeny caches the mandatory-deny union computed by
	// Validate. It cannot be removed by user policy.
	mandatoryDeny []string
}

// MandatoryDenyFiles are file names that must never be writable from
// inside a sandbox, regardless of user policy. Writing any of these gives
// an escape on the next interactive shell, git invocation, or package
// install outside the sandbox.
var MandatoryDenyFiles = []string{
	".gitconfig",
	".bashrc",
	".bash_profile",
	".bash_login",
	".profile",
	".zshrc",
	".zprofile",
	".zshenv",
	".zlogin",
	".mcp.json",
	".mcp-settings.json",
	".npmrc",
	".yarnrc",
	".yarnrc.yml",
}

// MandatoryDenyDirectories are directory names that must never be
// writable from inside a sandbox.
var MandatoryDenyDirectories = []string{
	".git/hooks",
	".git",
	".vscode",
	".idea",
	".claude/commands",
}

// SearchDepth returns the effective dangerous-file search depth.
func (p *Policy) SearchDepth() int {
	if p.MandatoryDenySearchDepth > 0 {
		return p.MandatoryDenySearchDepth
	}
	return DefaultMandatoryDenySearchDepth
}

// RipgrepCommand returns the configured rg command, defaulting to "rg".
func (p *Policy) RipgrepCommand() (command string, args []string) {
	if p.Ripgrep != nil && p.Ripgrep.Command != "" {
		return p.Ripgrep.Command, p.Ripgrep.Args
	}
	return "rg", nil
}

// MandatoryDeny returns the mandatory-deny union computed by Validate:
// the dangerous file and directory names, minus git config entries when
// AllowGitConfig is set. The returned slice is shared; callers must not
// modify it.
func (p *Policy) MandatoryDeny() []string {
	return p.mandatoryDeny
}

// MitmSocketPath returns the MITM upstream socket, or "" when no MITM
// proxy is configured.
func (n *Network) MitmSocketPath() string {
	if n.MitmProxy == nil {
		return ""
	}
	return n.MitmProxy.SocketPath
}

// MitmDomains returns the MITM domain patterns, or nil when no MITM
// proxy is configured.
func (n *Network) MitmDomains() []string {
	if n.MitmProxy == nil {
		return nil
	}
	return n.MitmProxy.Domains
}
