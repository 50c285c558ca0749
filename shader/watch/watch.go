// Package watch is the optional change-notification collaborator: a
// recursive filesystem watcher that debounces editor write bursts and
// forwards surviving paths to a notify function, normally the shader
// library's NotifyChanged. The core library never imports this package; it
// only receives paths.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/fsnotify/fsnotify"
)

// watcher is the implementation of the Watcher interface.
type watcher struct {
	mu *sync.Mutex

	root     string
	fsw      *fsnotify.Watcher
	notify   func(path string)
	debounce time.Duration

	// timers holds the pending per-path debounce timers. Another write to
	// the same path before its timer fires resets it, so a burst of saves
	// produces one notification.
	timers map[string]*time.Timer

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Watcher forwards debounced filesystem change notifications for a directory
// tree. Close stops the watcher; pending debounce timers are cancelled.
type Watcher interface {
	// Root returns the absolute directory the watcher covers.
	//
	// Returns:
	//   - string: the watched root
	Root() string

	// Close stops the event loop, cancels pending notifications and
	// releases the underlying filesystem watches. Safe to call multiple
	// times.
	//
	// Returns:
	//   - error: an error from closing the underlying watcher
	Close() error
}

// NewWatcher watches root and every directory beneath it, forwarding each
// changed file path to notify after the debounce interval passes without
// another write to the same path. Directories created later are added to the
// watch automatically.
//
// Parameters:
//   - root: the directory tree to watch
//   - notify: the function receiving changed paths (e.g. Library.NotifyChanged)
//   - options: functional options for the debounce interval
//
// Returns:
//   - Watcher: the running watcher
//   - error: an error if the root cannot be resolved or watched
func NewWatcher(root string, notify func(path string), options ...WatcherBuilderOption) (Watcher, error) {
	if notify == nil {
		return nil, fmt.Errorf("watch: notify function must not be nil")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: failed to resolve root %q: %w", root, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &watcher{
		mu:       &sync.Mutex{},
		fsw:      fsw,
		notify:   notify,
		debounce: 100 * time.Millisecond,
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(w)
	}

	w.root = abs
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.handleEvents()
	return w, nil
}

func (w *watcher) Root() string {
	return w.root
}

func (w *watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		w.timers = make(map[string]*time.Timer)
		w.mu.Unlock()
	})
	return err
}

// addTree registers root and every directory beneath it with the underlying
// watcher.
func (w *watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: adding %q: %w", path, err)
		}
		return nil
	})
}

// handleEvents runs the event loop in its own goroutine until Close.
func (w *watcher) handleEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			common.Logger().Warn("shader watch error", "error", err.Error())
		}
	}
}

func (w *watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	// New directories (or atomic-save renames of one) join the watch so
	// shaders added under them are seen.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				common.Logger().Warn("shader watch could not add directory", "path", event.Name, "error", err.Error())
			}
			return
		}
	}
	w.schedule(event.Name)
}

// schedule starts or resets the debounce timer for a path.
func (w *watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case <-w.done:
		default:
			w.notify(path)
		}
	})
}
