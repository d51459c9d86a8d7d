package config

import (
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/armada/engine/core"
)

// Watcher reloads the config file when it changes on disk and posts the
// hot-reloadable fields to the event bus. Events are delivered when the
// render thread drains the bus.
type Watcher struct {
	path     string
	bus      *core.EventBus
	fsnotify *fsnotify.Watcher
	done     chan struct{}
	exited   chan struct{}
	isClosed bool
}

func NewWatcher(path string, bus *core.EventBus) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory, editors replace files on save
	if err := fsWatch.Add(filepath.Dir(path)); err != nil {
		fsWatch.Close()
		return nil, err
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		bus:      bus,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go w.start()
	return w, nil
}

func (w *Watcher) Close() error {
	if w.isClosed {
		return errors.New("config watcher already closed")
	}
	w.isClosed = true
	close(w.done)
	<-w.exited
	return nil
}

func (w *Watcher) start() {
	defer close(w.exited)
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		core.LogWarn("config reload ignored: %s", err)
		return
	}
	w.bus.Post(core.EVENT_CODE_CONFIG_RELOADED, w, ReloadedContext(cfg.Reloadable()))
}

// ReloadedContext packs the reloadable fields into an event context.
func ReloadedContext(r Reloadable) core.EventContext {
	ctx := core.EventContext{}
	ctx.Data.C[0] = r.LogLevel
	copy(ctx.Data.F32[:], r.ClearColor[:])
	return ctx
}

// ReloadableFromContext is the inverse of ReloadedContext.
func ReloadableFromContext(ctx core.EventContext) Reloadable {
	r := Reloadable{LogLevel: ctx.Data.C[0]}
	copy(r.ClearColor[:], ctx.Data.F32[:])
	return r
}
