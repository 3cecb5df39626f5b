// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"strings"
)

// Error is a structured policy validation failure.
type Error struct {
	// Field names the offending configuration field.
	Field string
	// Reason explains why the value was rejected.
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid policy field %s: %s", e.Field, e.Reason)
}

// Validate checks the policy and computes the mandatory-deny union. A
// policy must be validated before it is handed to the proxies or the
// sandbox generators.
func (p *Policy) Validate() error {
	for _, pattern := range p.Network.AllowedDomains {
		if err := validateDomainPattern(pattern); err != nil {
			return &Error{Field: "network.allowedDomains", Reason: err.Error()}
		}
	}
	for _, pattern := range p.Network.DeniedDomains {
		if err := validateDomainPattern(pattern); err != nil {
			return &Error{Field: "network.deniedDomains", Reason: err.Error()}
		}
	}
	if mitm := p.Network.MitmProxy; mitm != nil {
		if mitm.SocketPath == "" {
			return &Error{Field: "network.mitmProxy.socketPath", Reason: "socket path is required"}
		}
		for _, pattern := range mitm.Domains {
			if err := validateDomainPattern(pattern); err != nil {
				return &Error{Field: "network.mitmProxy.domains", Reason: err.Error()}
			}
		}
	}
	if p.Network.HTTPProxyPort < 0 || p.Network.HTTPProxyPort > 65535 {
		return &Error{Field: "network.httpProxyPort", Reason: "port out of range"}
	}
	if p.Network.SocksProxyPort < 0 || p.Network.SocksProxyPort > 65535 {
		return &Error{Field: "network.socksProxyPort", Reason: "port out of range"}
	}

	for field, patterns := range map[string][]string{
		"filesystem.denyRead":   p.Filesystem.DenyRead,
		"filesystem.allowWrite": p.Filesystem.AllowWrite,
		"filesystem.denyWrite":  p.Filesystem.DenyWrite,
	} {
		for _, pattern := range patterns {
			if err := validatePathPattern(pattern); err != nil {
				return &Error{Field: field, Reason: err.Error()}
			}
		}
	}

	if p.MandatoryDenySearchDepth < 0 {
		return &Error{Field: "mandatoryDenySearchDepth", Reason: "must not be negative"}
	}

	if p.Seccomp != nil {
		if p.Seccomp.BPFPath == "" || p.Seccomp.ApplyPath == "" {
			return &Error{Field: "seccomp", Reason: "both bpfPath and applyPath are required"}
		}
	}

	p.mandatoryDeny = computeMandatoryDeny(p.Filesystem.AllowGitConfig)
	return nil
}

// computeMandatoryDeny assembles the union of dangerous file and
// directory names, honoring allowGitConfig.
func computeMandatoryDeny(allowGitConfig bool) []string {
	union := make([]string, 0, len(MandatoryDenyFiles)+len(MandatoryDenyDirectories))
	for _, file := range MandatoryDenyFiles {
		if allowGitConfig && file == ".gitconfig" {
			continue
		}
		union = append(union, file)
	}
	for _, dir := range MandatoryDenyDirectories {
		if allowGitConfig && dir == ".git" {
			// All of .git, including .git/config, becomes writable;
			// hooks stay protected by the .git/hooks entry.
			continue
		}
		union = append(union, dir)
	}
	return union
}

// validateDomainPattern checks that a pattern is a bare hostname or a
// "*." prefix followed by one. Schemes, paths, ports, and TLD-wide
// wildcards are rejected.
func validateDomainPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("domain pattern cannot be empty")
	}
	if pattern == "*" {
		return fmt.Errorf("wildcard-only patterns are not allowed")
	}
	if strings.Contains(pattern, "/") {
		return fmt.Errorf("pattern %q must be a bare hostname, not a URL or path", pattern)
	}
	if strings.Contains(pattern, ":") {
		return fmt.Errorf("pattern %q cannot include a scheme or port", pattern)
	}

	host := pattern
	if strings.HasPrefix(pattern, "*.") {
		host = pattern[2:]
		// *.com would whitelist an entire TLD.
		if !strings.Contains(host, ".") && len(host) <= 4 {
			return fmt.Errorf("pattern %q is too broad (matches an entire TLD)", pattern)
		}
	} else if strings.Contains(pattern, "*") {
		return fmt.Errorf("wildcard is only allowed as a leading \"*.\" label")
	}

	for _, ch := range host {
		if ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' {
			continue
		}
		switch ch {
		case '.', '-', '_':
			continue
		}
		// Non-ASCII hostnames are legal; they are punycode-normalized
		// at match time.
		if ch > 127 {
			continue
		}
		return fmt.Errorf("invalid character %q in domain pattern %q", ch, pattern)
	}
	return nil
}

// validatePathPattern rejects malformed glob syntax; plain paths pass
// through untouched.
func validatePathPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("path pattern cannot be empty")
	}
	depth := 0
	inClass := false
	for _, ch := range pattern {
		switch ch {
		case '[':
			if inClass {
				return fmt.Errorf("nested character class in pattern %q", pattern)
			}
			inClass = true
		case ']':
			inClass = false
		case '{':
			if !inClass {
				depth++
			}
		case '}':
			if !inClass {
				depth--
				if depth < 0 {
					return fmt.Errorf("unbalanced braces in pattern %q", pattern)
				}
			}
		}
	}
	if inClass {
		return fmt.Errorf("unclosed character class in pattern %q", pattern)
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced braces in pattern %q", pattern)
	}
	return nil
}
