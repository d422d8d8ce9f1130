package logging

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads the logging section when .weave/config.yaml changes.
// Rapid successive writes are collapsed into one reload.
type ConfigWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	pending  time.Time
	reloads  int
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stopped  bool
}

// NewConfigWatcher creates a watcher for the config file of workspace ws.
// Reloads use the workspace given to Initialize.
func NewConfigWatcher(ws string) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &ConfigWatcher{
		watcher:  w,
		dir:      filepath.Join(ws, ".weave"),
		debounce: 100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It does not block.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running || cw.stopped {
		cw.mu.Unlock()
		return nil
	}
	cw.running = true
	cw.mu.Unlock()

	if err := os.MkdirAll(cw.dir, 0755); err != nil {
		return err
	}
	if err := cw.watcher.Add(cw.dir); err != nil {
		return err
	}
	Boot("Config watcher: watching %s", cw.dir)

	go cw.run(ctx)
	return nil
}

// Stop ends the watch loop and releases the underlying watcher. Safe to call
// more than once.
func (cw *ConfigWatcher) Stop() {
	cw.mu.Lock()
	if cw.stopped {
		cw.mu.Unlock()
		return
	}
	cw.stopped = true
	wasRunning := cw.running
	cw.running = false
	cw.mu.Unlock()

	if wasRunning {
		close(cw.stopCh)
		<-cw.doneCh
	}
	if err := cw.watcher.Close(); err != nil {
		BootError("Config watcher: close failed: %v", err)
	}
}

// Reloads reports how many times the config has been reloaded.
func (cw *ConfigWatcher) Reloads() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.reloads
}

func (cw *ConfigWatcher) run(ctx context.Context) {
	defer close(cw.doneCh)

	ticker := time.NewTicker(cw.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			BootError("Config watcher: %v", err)
		case <-ticker.C:
			cw.flush()
		}
	}
}

func (cw *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != "config.yaml" {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	cw.mu.Lock()
	cw.pending = time.Now()
	cw.mu.Unlock()
}

// flush reloads once the last change has settled past the debounce window.
func (cw *ConfigWatcher) flush() {
	cw.mu.Lock()
	if cw.pending.IsZero() || time.Since(cw.pending) < cw.debounce {
		cw.mu.Unlock()
		return
	}
	cw.pending = time.Time{}
	cw.mu.Unlock()

	if err := ReloadConfig(); err != nil {
		BootError("Config watcher: reload failed: %v", err)
		return
	}
	if IsDebugMode() && logsDir != "" {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			BootError("Config watcher: %v", err)
		}
	}

	cw.mu.Lock()
	cw.reloads++
	cw.mu.Unlock()
	Boot("Config watcher: logging config reloaded (debug_mode=%v)", IsDebugMode())
}
