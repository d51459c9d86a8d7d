package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/armada/engine/core"
)

type Kind int

const (
	KindNone Kind = iota
	KindShader
	KindImage
	KindFont
)

func (k Kind) String() string {
	switch k {
	case KindShader:
		return "shader"
	case KindImage:
		return "image"
	case KindFont:
		return "font"
	}
	return "none"
}

func kindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return KindShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return KindImage
	case ".fnt":
		return KindFont
	}
	return KindNone
}

type Info struct {
	Path     string
	Kind     Kind
	Modified time.Time
}

// Change is published when an indexed file is created, rewritten or removed.
type Change struct {
	Info
	Removed bool
}

// Library indexes the asset files below a root directory and keeps the index
// current with fsnotify. Names are slash separated paths relative to root.
type Library struct {
	root string

	mutex  sync.RWMutex
	assets map[string]Info

	watcher *fsnotify.Watcher
	changes chan Change
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewLibrary indexes root recursively and starts watching it.
func NewLibrary(root string) (*Library, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	l := &Library{
		root:    root,
		assets:  make(map[string]Info),
		watcher: w,
		changes: make(chan Change, 32),
		done:    make(chan struct{}),
	}
	if err := l.watchRecursive(root); err != nil {
		w.Close()
		return nil, fmt.Errorf("indexing assets in %s: %w", root, err)
	}
	l.wg.Add(1)
	go l.run()
	core.LogDebug("Asset library at %s: %d files", root, len(l.assets))
	return l, nil
}

// Changes delivers index updates. Updates are dropped while the channel is full.
func (l *Library) Changes() <-chan Change {
	return l.changes
}

// Path returns the filesystem path of an indexed asset.
func (l *Library) Path(name string) (string, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	info, ok := l.assets[name]
	if !ok {
		return "", fmt.Errorf("asset not found: %s", name)
	}
	return info.Path, nil
}

// List returns the sorted names of every asset of kind.
func (l *Library) List(kind Kind) []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	var names []string
	for name, info := range l.assets {
		if info.Kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (l *Library) Close() error {
	if l.closed {
		return errors.New("asset library already closed")
	}
	l.closed = true
	close(l.done)
	l.wg.Wait()
	return l.watcher.Close()
}

func (l *Library) name(path string) string {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (l *Library) run() {
	defer l.wg.Done()
	for {
		select {
		case e, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handle(e)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)
		case <-l.done:
			return
		}
	}
}

func (l *Library) handle(e fsnotify.Event) {
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if e.Op&fsnotify.Create != 0 {
				if err := l.watchRecursive(e.Name); err != nil {
					core.LogWarn("watching %s: %s", e.Name, err)
				}
			}
			return
		}
		if info, ok := l.index(e.Name); ok {
			l.publish(Change{Info: info})
		}
	}
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if info, ok := l.remove(e.Name); ok {
			l.publish(Change{Info: info, Removed: true})
		}
	}
}

func (l *Library) publish(c Change) {
	select {
	case l.changes <- c:
	default:
		core.LogWarn("asset change for %s dropped", c.Path)
	}
}

// watchRecursive adds every directory under path to the watcher and indexes
// the files it finds.
func (l *Library) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return l.watcher.Add(p)
		}
		l.index(p)
		return nil
	})
}

func (l *Library) index(path string) (Info, bool) {
	kind := kindOf(path)
	if kind == KindNone {
		return Info{}, false
	}
	info := Info{Path: path, Kind: kind, Modified: time.Now()}
	if s, err := os.Stat(path); err == nil {
		info.Modified = s.ModTime()
	}
	l.mutex.Lock()
	l.assets[l.name(path)] = info
	l.mutex.Unlock()
	return info, true
}

func (l *Library) remove(path string) (Info, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	name := l.name(path)
	info, ok := l.assets[name]
	delete(l.assets, name)
	return info, ok
}
