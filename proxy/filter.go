// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/srt/policy"
)

// Decision classifies a hostname under the current policy.
type Decision int

const (
	// Allow tunnels the connection directly to the origin.
	Allow Decision = iota
	// Deny rejects the connection and records a violation.
	Deny
	// Mitm routes the connection through the MITM upstream socket.
	Mitm
)

// String returns the decision name for logging.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Mitm:
		return "mitm"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable compiled view of the network policy. Proxies
// capture one per accepted connection; it is never mutated after
// construction.
type Snapshot struct {
	allowed           []string
	denied            []string
	mitm              []string
	mitmSocketPath    string
	allowLocalBinding bool
}

// NewSnapshot compiles the network policy into a snapshot.
func NewSnapshot(network policy.Network) *Snapshot {
	return &Snapshot{
		allowed:           append([]string(nil), network.AllowedDomains...),
		denied:            append([]string(nil), network.DeniedDomains...),
		mitm:              append([]string(nil), network.MitmDomains()...),
		mitmSocketPath:    network.MitmSocketPath(),
		allowLocalBinding: network.AllowLocalBinding,
	}
}

// Check classifies a hostname. Evaluation order is fixed and total:
// denied patterns win over everything, MITM routing comes next, then an
// empty allow list means allow-all, then an allow-list match allows, and
// anything else is denied.
func (s *Snapshot) Check(hostname string) Decision {
	for _, pattern := range s.denied {
		if policy.MatchesDomain(hostname, pattern) {
			return Deny
		}
	}

	for _, pattern := range s.mitm {
		if policy.MatchesDomain(hostname, pattern) {
			return Mitm
		}
	}

	if len(s.allowed) == 0 {
		return Allow
	}
	for _, pattern := range s.allowed {
		if policy.MatchesDomain(hostname, pattern) {
			return Allow
		}
	}
	return Deny
}

// MitmSocketPath returns the MITM upstream socket for Mitm decisions.
func (s *Snapshot) MitmSocketPath() string {
	return s.mitmSocketPath
}

// AllowLocalBinding reports whether loopback IP connections are
// permitted for the SOCKS proxy's IP-literal requests.
func (s *Snapshot) AllowLocalBinding() bool {
	return s.allowLocalBinding
}

// Holder publishes snapshots to the proxies. Readers are wait-free (a
// single atomic load); writers serialize on a mutex that guards only the
// swap, so a slow update never blocks connection admission.
type Holder struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewHolder creates a holder with an initial snapshot.
func NewHolder(snapshot *Snapshot) *Holder {
	h := &Holder{}
	h.current.Store(snapshot)
	return h
}

// Load returns the current snapshot. Connections call this once at
// accept time and keep the reference for their lifetime.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Publish atomically replaces the current snapshot. Every connection
// accepted after Publish returns sees the new snapshot; in-flight
// connections keep the one they captured.
func (h *Holder) Publish(snapshot *Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current.Store(snapshot)
}
