package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// watchWorkerConfig follows edits to the worker config while serve mode is
// up, so port changes made behind our back show up in status and the event
// log. Stops when ctx is cancelled.
func (m *Manager) watchWorkerConfig(ctx context.Context) {
	configPath := m.Store.Path()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config watcher", "error", err)
		return
	}
	if err := watcher.Add(configPath); err != nil {
		slog.Error("Failed to watch worker config", "error", err, "path", configPath)
		watcher.Close()
		return
	}

	var reloadTimer *time.Timer
	var reloadMu sync.Mutex

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				// Editors and our own atomic writes replace the file,
				// which drops it from the watch list.
				if event.Op&(fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
					go rewatch(watcher, configPath)
				}

				// An atomic replace surfaces as Rename on kqueue but as
				// Remove on inotify, both mean new content.
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}

				reloadMu.Lock()
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(watchDebounce, m.onConfigChanged)
				reloadMu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watcher error", "error", err)
			}
		}
	}()

	slog.Info("Watching worker config for changes", "path", configPath)
}

// rewatch re-adds the watch after an atomic replace. The new file may not
// exist yet mid-rename, so retry with backoff.
func rewatch(watcher *fsnotify.Watcher, path string) {
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(10<<uint(attempt-1)) * time.Millisecond)
		}
		watcher.Remove(path)
		if err := watcher.Add(path); err == nil {
			return
		} else if attempt == 4 {
			slog.Error("Failed to re-add config watch", "error", err, "path", path)
		}
	}
}

func (m *Manager) onConfigChanged() {
	st := m.Supervisor.Status()
	slog.Info("Worker config changed", "port", st.Port, "endpoint", st.Endpoint)
	if m.Events != nil {
		_ = m.Events.LogProxyEvent("config_changed", fmt.Sprintf("endpoint now %s", st.Endpoint))
	}
}
