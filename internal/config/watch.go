package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor emits per save
// (truncate + write, or rename + create for atomic saves) into one reload.
const reloadDebounce = 200 * time.Millisecond

// Watch monitors path for changes and calls onChange with the newly loaded
// Config after each settled write. It runs until ctx is cancelled.
//
// If a reload fails (invalid YAML, multipliers out of range), the error is
// logged and the previous config remains active — Watch does not call
// onChange.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
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
			// Restart the debounce window; the reload happens once the
			// events stop arriving.
			pending = time.After(reloadDebounce)

		case <-pending:
			pending = nil

			// Re-add the file first: an atomic save may have replaced the
			// inode the watch was bound to.
			_ = watcher.Add(path)

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed — keeping previous config",
					"path", path, "err", err)
				continue
			}

			slog.Info("config: reloaded",
				"path", path,
				"sigma_multiplier", cfg.Engine.SigmaMultiplier,
				"warning_multiplier", cfg.Engine.EffectiveWarningMultiplier(),
			)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
