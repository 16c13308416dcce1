package config

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the event bursts editors and configuration
// management tools produce on save (write + chmod, or rename + create).
const debounceWindow = 250 * time.Millisecond

// Change is one successful reload: the fresh config plus the device-set
// delta against the previously active one. Connection settings are captured
// when a device loop starts, so the caller mostly logs the delta and tells
// the operator a restart is needed to apply it.
type Change struct {
	Config *Config

	AddedDevices   []string
	RemovedDevices []string
}

// Watch monitors path and calls onChange after each successful reload.
// Reload failures (invalid YAML, failed validation) are logged and the
// previous config stays active. Watch blocks until ctx is cancelled.
//
// active is the config currently in effect; the first Change diffs
// against it.
func Watch(ctx context.Context, path string, active *Config, onChange func(Change)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	var pending <-chan time.Time
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
			pending = time.After(debounceWindow)

		case <-pending:
			pending = nil

			// Atomic saves replace the inode; re-add before reading so the
			// next save is seen even if this reload fails.
			_ = watcher.Add(path)

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}

			added, removed := deviceDiff(active, cfg)
			slog.Info("config: reloaded",
				"path", path,
				"devices", len(cfg.Devices),
				"devices_added", added,
				"devices_removed", removed)
			onChange(Change{Config: cfg, AddedDevices: added, RemovedDevices: removed})
			active = cfg

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// deviceDiff returns the device ids present only in next (added) and only
// in prev (removed), sorted.
func deviceDiff(prev, next *Config) (added, removed []string) {
	prevIDs := make(map[string]bool, len(prev.Devices))
	for _, d := range prev.Devices {
		prevIDs[d.ID] = true
	}
	nextIDs := make(map[string]bool, len(next.Devices))
	for _, d := range next.Devices {
		nextIDs[d.ID] = true
		if !prevIDs[d.ID] {
			added = append(added, d.ID)
		}
	}
	for _, d := range prev.Devices {
		if !nextIDs[d.ID] {
			removed = append(removed, d.ID)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
