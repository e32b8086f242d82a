package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"unshub/pkg/logging"
)

// Watcher observes the configuration directory and reloads config.yaml on
// change, handing the parsed result to the callback. Editors write config
// files in bursts (truncate, write, rename), so events are debounced.
type Watcher struct {
	configPath string
	onChange   func(HubConfig)

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher for configPath that calls onChange with each
// successfully re-loaded configuration.
func NewWatcher(configPath string, onChange func(HubConfig)) *Watcher {
	return &Watcher{configPath: configPath, onChange: onChange}
}

// Start begins watching. Missing directories are not an error: the watcher
// simply has nothing to report until the path exists at restart.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.configPath); err != nil {
		fsw.Close()
		logging.Warn("ConfigWatcher", "cannot watch %s: %v", w.configPath, err)
		return nil
	}
	w.watcher = fsw

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx)

	logging.Info("ConfigWatcher", "watching %s", w.configPath)
	return nil
}

// Stop terminates the watch loop.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	if w.watcher != nil {
		w.watcher.Close()
	}
}

const debounceWindow = 250 * time.Millisecond

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var pending *time.Timer
	var pendingC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(debounceWindow)
				pendingC = pending.C
			} else {
				pending.Reset(debounceWindow)
			}

		case <-pendingC:
			pending = nil
			pendingC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("ConfigWatcher", "watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		logging.Warn("ConfigWatcher", "ignoring invalid configuration: %v", err)
		return
	}
	logging.Info("ConfigWatcher", "configuration reloaded")
	w.onChange(cfg)
}
