package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the settings file into cfg whenever it changes on disk.
// Editors replace files by rename, so the parent directory is watched.
// Reload errors are logged and the previous config stays in effect.
func Watch(ctx context.Context, path string, cfg *Config, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		// Debounce: editors fire several events per save.
		var timer *time.Timer
		reload := func() {
			next, err := Load(path)
			if err != nil {
				logger.Warn("config.reload.failed", "path", path, "error", err)
				return
			}
			cfg.ReplaceFrom(next)
			logger.Info("config.reloaded", "path", path)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(200*time.Millisecond, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config.watch.error", "error", err)
			}
		}
	}()

	return nil
}
