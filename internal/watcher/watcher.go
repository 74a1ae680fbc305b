// Package watcher monitors directories for markdown file changes.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op describes what happened to a file.
type Op string

const (
	OpCreated  Op = "created"
	OpModified Op = "modified"
	OpDeleted  Op = "deleted"
)

// Event is one markdown file change.
type Event struct {
	Op   Op
	Path string
}

// Handler receives file change events.
type Handler func(Event)

// Watcher watches directories recursively for markdown changes. Rapid
// successive writes to the same file are coalesced into one event.
type Watcher struct {
	fsw      *fsnotify.Watcher
	handler  Handler
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a modify event fires.
	// Defaults to 500ms.
	Debounce time.Duration
}

// New creates a watcher over the given directories. Subdirectories existing
// at start are watched too; directories created later are added as they
// appear.
func New(paths []string, handler Handler, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w := &Watcher{
		fsw:      fsw,
		handler:  handler,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}

	for _, p := range paths {
		if err := w.addRecursive(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.dispatch(ev)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watch errors are not actionable here; keep watching.
		}
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event) {
	// New directories need to be watched for their contents.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(ev.Name), ".") {
				w.addRecursive(ev.Name)
			}
			return
		}
	}

	if !isMarkdown(ev.Name) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.cancelPending(ev.Name)
		w.handler(Event{Op: OpDeleted, Path: ev.Name})
	case ev.Op.Has(fsnotify.Create):
		w.schedule(ev.Name, OpCreated)
	case ev.Op.Has(fsnotify.Write):
		w.schedule(ev.Name, OpModified)
	}
}

// schedule coalesces bursts of events for one path into a single callback
// after the debounce window.
func (w *Watcher) schedule(path string, op Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.handler(Event{Op: op, Path: path})
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
}

// Stop stops watching and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return err
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
