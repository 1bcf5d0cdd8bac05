// Package allocwatch watches a small JSON tuning file and resizes a live
// allocator.Allocator when it changes, so a long-running process can have
// its pool grown or shrunk without a restart.
package allocwatch

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/orizon-lang/orizon-alloc/internal/allocator"
)

// Tuning is the on-disk shape of the watched config file.
type Tuning struct {
	TargetSize uintptr `json:"target_size"`
}

// Watcher watches path and calls alloc.Resize(TargetSize) whenever the
// file is written or created, whether or not the target differs from the
// previous one. Errors encountered while
// reading or parsing the file are delivered on Errors() rather than
// crashing the watch loop, so a transient bad write does not kill it.
type Watcher struct {
	alloc *allocator.Allocator
	path  string
	fsw   *fsnotify.Watcher
	done  chan struct{}
	errC  chan error
}

// New creates a Watcher over path. The caller owns alloc and must not call
// its methods concurrently from another goroutine while the watcher is
// running, per the allocator's single-threaded contract.
func New(alloc *allocator.Allocator, path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("allocwatch: creating fsnotify watcher: %w", err)
	}

	if err := fsw.Add(path); err != nil {
		fsw.Close()

		return nil, fmt.Errorf("allocwatch: watching %s: %w", path, err)
	}

	w := &Watcher{
		alloc: alloc,
		path:  path,
		fsw:   fsw,
		done:  make(chan struct{}),
		errC:  make(chan error, 8),
	}

	go w.loop()

	return w, nil
}

// Errors surfaces read/parse/resize failures encountered by the watch loop.
func (w *Watcher) Errors() <-chan error { return w.errC }

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if err := w.apply(); err != nil {
				w.trySend(err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.trySend(err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) apply() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("allocwatch: reading %s: %w", w.path, err)
	}

	var t Tuning
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("allocwatch: parsing %s: %w", w.path, err)
	}

	if t.TargetSize == 0 {
		return fmt.Errorf("allocwatch: %s set target_size to 0, ignoring", w.path)
	}

	if _, err := w.alloc.Resize(t.TargetSize); err != nil {
		return fmt.Errorf("allocwatch: resizing to %d: %w", t.TargetSize, err)
	}

	return nil
}

func (w *Watcher) trySend(err error) {
	select {
	case w.errC <- err:
	default:
	}
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)

	return w.fsw.Close()
}
