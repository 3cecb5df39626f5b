// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bureau-foundation/srt/lib/platform"
	"github.com/bureau-foundation/srt/policy"
)

// The AF_UNIX seccomp filter ships as a pre-generated BPF blob per
// architecture, applied by a small helper binary that loads the filter
// and execs the wrapped command. Policy can override both paths;
// otherwise they are searched for in vendor locations relative to the
// working directory and the executable.

const (
	seccompBPFName   = "unix-block.bpf"
	seccompApplyName = "apply-seccomp"
)

var seccompCache struct {
	sync.Mutex
	resolved map[string][2]string
}

// ResolveSeccomp locates the BPF filter and apply helper. Explicit
// config paths win; otherwise bundled vendor locations are probed.
// Results are cached per config key.
func ResolveSeccomp(config *policy.Seccomp) (bpfPath, applyPath string, err error) {
	key := ""
	if config != nil {
		key = config.BPFPath + "\x00" + config.ApplyPath
	}

	seccompCache.Lock()
	defer seccompCache.Unlock()
	if seccompCache.resolved == nil {
		seccompCache.resolved = make(map[string][2]string)
	}
	if cached, ok := seccompCache.resolved[key]; ok {
		if cached[0] == "" {
			return "", "", fmt.Errorf("seccomp filter not available for architecture %q", platform.Arch())
		}
		return cached[0], cached[1], nil
	}

	bpfPath = findSeccompFile(configPath(config, true), seccompBPFName)
	applyPath = findSeccompFile(configPath(config, false), seccompApplyName)

	if bpfPath == "" || applyPath == "" {
		seccompCache.resolved[key] = [2]string{"", ""}
		return "", "", fmt.Errorf("seccomp filter not available for architecture %q", platform.Arch())
	}

	seccompCache.resolved[key] = [2]string{bpfPath, applyPath}
	return bpfPath, applyPath, nil
}

func configPath(config *policy.Seccomp, bpf bool) string {
	if config == nil {
		return ""
	}
	if bpf {
		return config.BPFPath
	}
	return config.ApplyPath
}

// findSeccompFile checks the explicit path first, then the bundled
// vendor locations for the current architecture.
func findSeccompFile(explicit, filename string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	arch := platform.Arch()
	if arch == "unknown" {
		return ""
	}

	candidates := []string{
		filepath.Join("vendor", "seccomp", arch, filename),
		filepath.Join("..", "vendor", "seccomp", arch, filename),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "vendor", "seccomp", arch, filename),
			filepath.Join(dir, "..", "vendor", "seccomp", arch, filename),
		)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".local", "share", "srt", "seccomp", arch, filename))
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// resetSeccompCache clears the resolution cache; tests use it.
func resetSeccompCache() {
	seccompCache.Lock()
	defer seccompCache.Unlock()
	seccompCache.resolved = nil
}
