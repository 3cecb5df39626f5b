// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bureau-foundation/srt/policy"
)

// watchDebounce coalesces editor write bursts into one reload.
const watchDebounce = 250 * time.Millisecond

// WatchSettings reloads the settings file on change and applies it as a
// policy update. Invalid intermediate states (half-written files, bad
// JSON) are logged and skipped; the previous policy stays in force.
// Blocks until ctx is cancelled.
func (m *Manager) WatchSettings(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	m.logger.Info("watching settings file", "path", path)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			updated, err := policy.Load(path)
			if err != nil {
				m.logger.Warn("settings reload failed; keeping previous policy", "error", err)
				continue
			}
			if err := m.UpdatePolicy(updated); err != nil {
				m.logger.Warn("settings update rejected", "error", err)
				continue
			}
			m.logger.Info("settings reloaded", "path", path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("settings watcher error", "error", err)
		}
	}
}
