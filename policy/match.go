// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"strings"

	"golang.org/x/net/idna"
)

// MatchesDomain reports whether hostname matches pattern. An exact
// pattern ("example.com") matches only that hostname; a wildcard pattern
// ("*.example.com") matches proper subdomains ("a.example.com",
// "a.b.example.com") but never the bare domain. Comparison is
// ASCII-case-insensitive; internationalized names are compared after
// lowercased punycode normalization, so "bücher.de" and "xn--bcher-kva.de"
// are the same host.
func MatchesDomain(hostname, pattern string) bool {
	host := normalizeHost(hostname)

	if rest, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(host, "."+normalizeHost(rest))
	}
	return host == normalizeHost(pattern)
}

// normalizeHost lowercases a hostname and converts any internationalized
// labels to punycode. Inputs that fail IDNA mapping fall back to plain
// ASCII lowercasing so that malformed hostnames still compare
// deterministically.
func normalizeHost(host string) string {
	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	if ascii, err := idna.Lookup.ToASCII(lower); err == nil {
		return ascii
	}
	return lower
}
