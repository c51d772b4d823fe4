package watch

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

// FSNotify is the DirectoryWatcher backed by fsnotify. It reports creation
// of direct children of one root directory.
type FSNotify struct {
	root    string
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewFSNotify subscribes to root. Failure to create the backend or to add
// the root is a precondition error and leaves nothing running.
func NewFSNotify(root string) (*FSNotify, error) {
	root = filepath.Clean(root)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "create watcher",
			Path: root,
			Err:  fmt.Errorf("%w: %v", envcertserrors.ErrWatchUnavailable, err),
		}
	}

	if err := w.Add(root); err != nil {
		_ = w.Close()
		return nil, &envcertserrors.EnvcertsError{
			Op:   "watch root",
			Path: root,
			Err:  fmt.Errorf("%w: %v", envcertserrors.ErrWatchUnavailable, err),
		}
	}

	f := &FSNotify{
		root:    root,
		watcher: w,
		events:  make(chan Event),
		errors:  make(chan error),
		done:    make(chan struct{}),
	}
	go f.pump()

	return f, nil
}

// Events implements DirectoryWatcher.
func (f *FSNotify) Events() <-chan Event {
	return f.events
}

// Errors implements DirectoryWatcher.
func (f *FSNotify) Errors() <-chan error {
	return f.errors
}

// Close implements DirectoryWatcher. It is safe to call more than once.
func (f *FSNotify) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		f.closeErr = f.watcher.Close()
	})
	return f.closeErr
}

// pump translates fsnotify events, keeping only creations directly under
// root, and closes the output channels when the backend stops.
func (f *FSNotify) pump() {
	defer close(f.events)
	defer close(f.errors)

	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			parent := filepath.Dir(ev.Name)
			if parent != f.root {
				continue
			}
			select {
			case f.events <- Event{Parent: parent, Name: filepath.Base(ev.Name)}:
			case <-f.done:
				return
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			select {
			case f.errors <- err:
			case <-f.done:
				return
			}

		case <-f.done:
			return
		}
	}
}
