// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package dconfig

import (
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/sysinit-go/daemonkit"
)

// Watcher re-parses a config file via Parse whenever it changes on
// disk, and reports parse errors (or fsnotify errors) on Errors rather
// than returning them synchronously, since nothing is blocked waiting
// for a reload to happen.
type Watcher struct {
	path   string
	cb     Callback
	logger hclog.Logger
	fsw    *fsnotify.Watcher

	Errors chan error
	done   chan struct{}
}

// NewWatcher creates a Watcher for path that invokes cb on every
// successful (re)parse, including the first one performed by Watch.
func NewWatcher(path string, cb Callback, logger hclog.Logger) (*Watcher, error) {
	const op = "dconfig.NewWatcher"

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, daemonkit.New(op, daemonkit.Unknown, err)
	}

	return &Watcher{
		path:   path,
		cb:     cb,
		logger: logger.Named("dconfig.watcher"),
		fsw:    fsw,
		Errors: make(chan error, 8),
		done:   make(chan struct{}),
	}, nil
}

// Watch performs an initial parse of the watched file, then starts a
// background goroutine that re-parses it on every write or rename
// (editors commonly replace a file by renaming a temp file over it,
// which a plain "modified" watch on the original inode would miss).
// Watch returns once the initial parse completes; subsequent reloads
// happen asynchronously and report through Errors.
func (w *Watcher) Watch() error {
	const op = "dconfig.Watcher.Watch"

	if err := w.reload(); err != nil {
		return err
	}

	if err := w.fsw.Add(w.path); err != nil {
		return daemonkit.New(op, daemonkit.Unknown, err)
	}

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Rename != 0 {
				// the watch on the old inode is now dead; re-add it so a
				// rename-over-the-original (the common atomic-save idiom)
				// keeps being observed
				_ = w.fsw.Add(w.path)
			}
			w.logger.Debug("config changed, reloading", "path", w.path, "op", event.Op.String())
			if err := w.reload(); err != nil {
				w.emit(err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emit(err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() error {
	const op = "dconfig.Watcher.reload"

	f, err := os.Open(w.path)
	if err != nil {
		return daemonkit.New(op, daemonkit.Unknown, err)
	}
	defer f.Close()

	return Parse(f, w.cb)
}

func (w *Watcher) emit(err error) {
	select {
	case w.Errors <- err:
	default:
		w.logger.Warn("dropping watcher error, Errors channel full", "error", err)
	}
}

// Close stops the watcher's background goroutine and releases its
// fsnotify resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
