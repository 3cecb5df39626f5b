// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bureau-foundation/srt/lib/pathutil"
	"github.com/bureau-foundation/srt/lib/ripgrep"
	"github.com/bureau-foundation/srt/policy"
)

// MountKind selects how a path is realized in the bwrap argv.
type MountKind int

const (
	// MountWritable is a read-write bind of the path over itself.
	MountWritable MountKind = iota
	// MountReadOnly is a read-only bind masking a writable parent.
	MountReadOnly
	// MountTmpfsMask hides a directory behind an empty tmpfs.
	MountTmpfsMask
	// MountBlockFile masks a file (or not-yet-existing path) with
	// /dev/null.
	MountBlockFile
)

// BindMount is one mount in the generated argv.
type BindMount struct {
	Path string
	Kind MountKind
}

// Args renders the mount as bwrap arguments.
func (m BindMount) Args() []string {
	switch m.Kind {
	case MountWritable:
		return []string{"--bind", m.Path, m.Path}
	case MountReadOnly:
		return []string{"--ro-bind", m.Path, m.Path}
	case MountTmpfsMask:
		return []string{"--tmpfs", m.Path}
	case MountBlockFile:
		return []string{"--ro-bind", "/dev/null", m.Path}
	default:
		return nil
	}
}

// GenerateBindMounts translates the filesystem policy into bwrap mounts.
// Writable mounts come from literal-expanded AllowWrite patterns; deny
// masks come from DenyWrite, the mandatory-deny set in the working
// directory and home, and ripgrep dangerous-file discovery. Denies are
// returned after writable mounts so they land later in the argv and
// shadow them.
func GenerateBindMounts(p *policy.Policy, cwd string) (mounts []BindMount, warnings []string) {
	writable := make(map[string]bool)
	for _, pattern := range p.Filesystem.AllowWrite {
		normalized := pathutil.Normalize(pattern)
		expanded := expandGlobDirs(normalized)
		if len(expanded) == 0 {
			warnings = append(warnings, fmt.Sprintf("write pattern %q matches nothing; ignoring", pattern))
			continue
		}
		for _, path := range expanded {
			writable[path] = true
		}
	}

	deny := make(map[string]bool)
	addDeny := func(path string) {
		deny[path] = true
	}

	for _, pattern := range p.Filesystem.DenyWrite {
		normalized := pathutil.Normalize(pattern)
		if pathutil.ContainsGlob(normalized) {
			expanded := expandGlobDirs(normalized)
			if len(expanded) == 0 {
				warnings = append(warnings, fmt.Sprintf("deny pattern %q matches nothing; ignoring", pattern))
				continue
			}
			for _, path := range expanded {
				addDeny(path)
			}
			continue
		}
		addDeny(normalized)
	}

	// Mandatory-deny paths in the working directory and home.
	home, _ := os.UserHomeDir()
	for _, dir := range policy.MandatoryDenyDirectories {
		if p.Filesystem.AllowGitConfig && dir == ".git" {
			continue
		}
		for _, base := range []string{cwd, home} {
			if base == "" {
				continue
			}
			path := filepath.Join(base, dir)
			if _, err := os.Stat(path); err == nil {
				addDeny(path)
			}
		}
	}
	for _, file := range policy.MandatoryDenyFiles {
		if p.Filesystem.AllowGitConfig && file == ".gitconfig" {
			continue
		}
		if home == "" {
			continue
		}
		path := filepath.Join(home, file)
		if _, err := os.Stat(path); err == nil {
			addDeny(path)
		}
	}

	// Dangerous files nested deeper in the tree, found with ripgrep.
	rgCommand, rgArgs := p.RipgrepCommand()
	dangerous, err := ripgrep.FindDangerous(cwd, ripgrep.Options{
		Command:     rgCommand,
		ExtraArgs:   rgArgs,
		MaxDepth:    p.SearchDepth(),
		Files:       mandatoryFiles(p),
		Directories: mandatoryDirs(p),
	})
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("dangerous-file discovery unavailable: %v", err))
	}
	for _, path := range dangerous {
		addDeny(path)
	}

	// Writable binds first.
	for path := range writable {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			if pathutil.EscapesBoundary(path, resolved) {
				mounts = append(mounts, BindMount{Path: path, Kind: MountBlockFile})
				warnings = append(warnings, fmt.Sprintf("write path %q is a symlink escaping its boundary; blocked", path))
				continue
			}
		}
		mounts = append(mounts, BindMount{Path: path, Kind: MountWritable})
	}
	sortMounts(mounts)

	// Deny masks after, so they shadow writable binds.
	var denies []BindMount
	for path := range deny {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			denies = append(denies, BindMount{Path: path, Kind: MountBlockFile})
		case info.IsDir():
			denies = append(denies, BindMount{Path: path, Kind: MountTmpfsMask})
		default:
			denies = append(denies, BindMount{Path: path, Kind: MountReadOnly})
		}
	}
	sortMounts(denies)

	return append(mounts, denies...), warnings
}

func mandatoryFiles(p *policy.Policy) []string {
	if !p.Filesystem.AllowGitConfig {
		return policy.MandatoryDenyFiles
	}
	var files []string
	for _, f := range policy.MandatoryDenyFiles {
		if f != ".gitconfig" {
			files = append(files, f)
		}
	}
	return files
}

func mandatoryDirs(p *policy.Policy) []string {
	if !p.Filesystem.AllowGitConfig {
		return policy.MandatoryDenyDirectories
	}
	var dirs []string
	for _, d := range policy.MandatoryDenyDirectories {
		if d != ".git" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// sortMounts orders mounts by path so parent directories mount before
// their children and output is deterministic.
func sortMounts(mounts []BindMount) {
	sort.Slice(mounts, func(i, j int) bool {
		return mounts[i].Path < mounts[j].Path
	})
}
