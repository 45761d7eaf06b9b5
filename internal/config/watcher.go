// SPDX-License-Identifier: MIT
package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	applog "pulse/internal/log"
)

// HotConfig wraps Config with file-watch hot reload. Tuning an audio
// reactive rig is done live; edits to the config file re-apply the tuning
// sections to the running pipeline through registered callbacks.
type HotConfig struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
	subs []func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewHotConfig loads the config at path and prepares it for watching.
func NewHotConfig(path string) (*HotConfig, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &HotConfig{cfg: cfg, path: path, done: make(chan struct{})}, nil
}

// Get returns the current config. The returned value must be treated as
// read-only; a reload swaps in a fresh instance rather than mutating it.
func (hc *HotConfig) Get() *Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// OnReload registers a callback invoked with the new config after every
// successful reload. Register all callbacks before calling Watch.
func (hc *HotConfig) OnReload(fn func(*Config)) {
	hc.subs = append(hc.subs, fn)
}

func (hc *HotConfig) reload() {
	cfg, err := LoadConfig(hc.path)
	if err != nil {
		applog.Errorf("config: reload failed, keeping previous config: %v", err)
		return
	}
	hc.mu.Lock()
	hc.cfg = cfg
	hc.mu.Unlock()

	applog.Infof("config: reloaded %s", hc.path)
	for _, fn := range hc.subs {
		fn(cfg)
	}
}

// Watch starts watching the config file for writes. No-op if the config
// came from defaults rather than a file.
func (hc *HotConfig) Watch() error {
	if hc.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	hc.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				applog.Errorf("config: watcher error: %v", err)
			case <-hc.done:
				return
			}
		}
	}()

	if err := watcher.Add(hc.path); err != nil {
		return err
	}
	return nil
}

// Close stops the watcher goroutine. Safe to call multiple times.
func (hc *HotConfig) Close() error {
	hc.once.Do(func() { close(hc.done) })
	return nil
}
