// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a stable content hash of the policy. The manager
// uses it to make Initialize idempotent: re-initializing with a policy
// whose fingerprint is unchanged is a no-op, and control-channel updates
// that carry an identical policy skip the snapshot rebuild.
func (p *Policy) Fingerprint() (string, error) {
	// encoding/json serializes struct fields in declaration order and
	// sorts map keys, so equal policies produce equal bytes.
	encoded, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("fingerprint policy: %w", err)
	}
	sum := blake3.Sum256(encoded)
	return fmt.Sprintf("%x", sum), nil
}
