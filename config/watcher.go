package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slices"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands every
// valid new config to the registered listeners. An invalid file is logged
// and ignored; the previous config stays current.
type Watcher struct {
	cfile    string
	realhw   bool
	debounce time.Duration

	mu      sync.RWMutex
	current *Config

	listenersMutex sync.Mutex
	listeners      []func(*Config)
}

func NewWatcher(initial *Config) *Watcher {
	return &Watcher{
		cfile:    initial.Configfile,
		realhw:   initial.RealHW,
		debounce: reloadDebounce,
		current:  initial,
	}
}

func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnReload registers fn to be called after every successful reload.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.listenersMutex.Lock()
	defer w.listenersMutex.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Reload reads the file now.
func (w *Watcher) Reload() error {
	cfg, err := ReadConfig(w.cfile, w.realhw)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.listenersMutex.Lock()
	listeners := slices.Clone(w.listeners)
	w.listenersMutex.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	slog.Info("Watcher: configuration reloaded", "file", w.cfile)
	return nil
}

// Run watches the directory of the config file until ctx is done. The
// directory is watched, not the file, because atomic writes replace the
// file's inode.
func (w *Watcher) Run(ctx context.Context) error {
	if w.cfile == "" {
		slog.Info("Watcher: no config file, hot reload disabled")
		<-ctx.Done()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.cfile)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	slog.Info("Watcher: watching config file", "file", w.cfile)

	name := filepath.Clean(w.cfile)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			slog.Debug("Watcher: config file changed", "op", event.Op.String())
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := w.Reload(); err != nil {
					slog.Error("Watcher: reload failed, keeping previous config", "error", err)
				}
			})
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("Watcher: fsnotify error", "error", err)
		}
	}
}
