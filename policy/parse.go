// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is the settings file name looked up under the
// user's home directory.
const DefaultSettingsFile = ".srt-settings.json"

// DefaultSettingsPath returns ~/.srt-settings.json, or "" when the home
// directory cannot be determined.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultSettingsFile)
}

// Load reads and validates a policy file. Files ending in .yaml or .yml
// are parsed as YAML; everything else is parsed as JSON with comments and
// trailing commas tolerated.
func Load(path string) (*Policy, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var p Policy
		if err := yaml.Unmarshal(content, &p); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return Parse(content)
	}
}

// LoadDefault loads the policy from the default settings path, or
// returns an empty (allow-network, deny-write) policy when no settings
// file exists.
func LoadDefault() (*Policy, error) {
	path := DefaultSettingsPath()
	if path == "" {
		p := &Policy{}
		return p, p.Validate()
	}
	if _, err := os.Stat(path); err != nil {
		p := &Policy{}
		return p, p.Validate()
	}
	return Load(path)
}

// Parse decodes and validates a JSON policy document. Comments and
// trailing commas are accepted. Unknown keys are ignored with a debug
// log, so settings files written for newer runtimes still load.
func Parse(content []byte) (*Policy, error) {
	plain := jsonc.ToJSON(content)

	var p Policy
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, fmt.Errorf("parse settings JSON: %w", err)
	}

	logUnknownKeys(plain)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseLine decodes a single control-channel policy line. Empty and
// whitespace-only lines return (nil, nil) so the control reader can skip
// keepalives without logging.
func ParseLine(line string) (*Policy, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}
	return Parse([]byte(trimmed))
}

// knownTopLevelKeys mirrors the Policy JSON schema for unknown-key
// detection.
var knownTopLevelKeys = map[string]bool{
	"network":                   true,
	"filesystem":                true,
	"ignoreViolations":          true,
	"enableWeakerNestedSandbox": true,
	"ripgrep":                   true,
	"mandatoryDenySearchDepth":  true,
	"allowPty":                  true,
	"seccomp":                   true,
}

func logUnknownKeys(plain []byte) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(plain, &raw); err != nil {
		return
	}
	for key := range raw {
		if !knownTopLevelKeys[key] {
			slog.Debug("ignoring unknown settings key", "key", key)
		}
	}
}
