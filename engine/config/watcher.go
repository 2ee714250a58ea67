package config

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// Watcher reloads a configuration file whenever it is written and fires
// EVENT_CODE_CONFIG_RELOADED on the bus with the new configuration applied.
type Watcher struct {
	path string
	bus  *core.EventBus

	mutex   sync.RWMutex
	current *Config

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	isClosed bool
}

// NewWatcher loads path once and starts watching it. bus may be nil.
func NewWatcher(path string, bus *core.EventBus) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// editors replace files on save, so watch the directory
	if err := fsWatch.Add(filepath.Dir(path)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		bus:      bus,
		current:  cfg,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	cfg.Apply()
	go w.start()
	return w, nil
}

func (w *Watcher) Config() *Config {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.current
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return errors.New("config watcher already closed")
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	<-w.stopped
	return nil
}

func (w *Watcher) start() {
	defer close(w.stopped)
	for {
		select {
		case e := <-w.fsnotify.Events:
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}

		case err := <-w.fsnotify.Errors:
			if err != nil {
				core.LogError("%s", err)
			}

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

// reload keeps the previous configuration when the new file does not parse.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		core.LogWarn("ignoring configuration change in %s: %s", w.path, err)
		return
	}

	cfg.Apply()
	w.mutex.Lock()
	w.current = cfg
	w.mutex.Unlock()

	core.LogInfo("configuration reloaded from %s", w.path)
	if w.bus != nil {
		ctx := core.EventContext{}
		ctx.Data.C[0] = w.path
		w.bus.Fire(core.EVENT_CODE_CONFIG_RELOADED, w, ctx)
	}
}
