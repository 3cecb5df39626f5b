// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proxy implements the filtering network proxies that sandboxed
// processes are routed through.
//
// Two servers run on OS-chosen loopback ports: [HTTPProxy] accepts
// CONNECT tunnels and absolute-URI forward requests, and [SocksProxy]
// implements the RFC 1928 CONNECT subset. Both consult the same domain
// classification: a hostname resolves to exactly one of Allow, Deny, or
// Mitm, in that fixed priority order (denied patterns first, then MITM
// routing, then the allow list; an empty allow list means allow-all).
//
// Policy lives in an immutable [Snapshot] published through a [Holder]
// with an atomic pointer swap. Each accepted connection captures the
// snapshot current at accept time and uses it for the connection's whole
// lifetime, so a policy update never changes the rules under an
// established tunnel; linearizability comes from the single swap. Denied
// and failed connections are recorded in the violation store.
//
// Connections matching a MITM domain are not tunneled to the origin.
// Instead the proxy dials the configured MITM upstream (a Unix-domain
// socket), forwards the CONNECT request line verbatim, and splices the
// raw byte stream, giving the inspection endpoint the clear-form traffic.
package proxy
