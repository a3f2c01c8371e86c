// Package devwatch watches a project root for filesystem changes during
// local development and triggers a rescan/rebuild of the route table.
package devwatch

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a project root and calls onChange after a burst of
// filesystem activity settles.
type Watcher struct {
	root     string
	onChange func()
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

// New creates a Watcher over root. onChange is invoked once per debounced
// burst of relevant changes; it should rescan and rebuild the route
// table.
func New(root string, onChange func()) *Watcher {
	return &Watcher{root: root, onChange: onChange, done: make(chan struct{})}
}

// Start begins watching the directory tree. It walks root to add all
// non-ignored directories, then starts a goroutine to process events.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	err = filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && shouldIgnoreDir(w.root, path) {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	go w.loop()
	return nil
}

// Stop terminates the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	if w.fsw != nil {
		w.fsw.Close()
	}
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	const debounce = 50 * time.Millisecond
	timer := time.NewTimer(0)
	timer.Stop()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				timer.Reset(debounce)
			}

		case <-timer.C:
			w.onChange()

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// relevant reports whether ev should trigger a rescan: writes, creates,
// removes, and renames of any file under root. A newly created directory
// is relevant too, and as a side effect it and its non-ignored
// subdirectories are added to the watch list.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			filepath.WalkDir(ev.Name, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() && shouldIgnoreDir(w.root, path) {
					return filepath.SkipDir
				}
				if d.IsDir() {
					w.fsw.Add(path)
				}
				return nil
			})
			return true
		}
	}

	return true
}

// shouldIgnoreDir excludes hidden directories, node_modules, and the
// store root from the watch list.
func shouldIgnoreDir(root, path string) bool {
	name := filepath.Base(path)

	if strings.HasPrefix(name, ".") && path != root {
		return true
	}
	if name == "node_modules" {
		return true
	}
	return false
}
