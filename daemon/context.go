// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"sync"

	"golang.org/x/sys/unix"

	sdnotify "github.com/coreos/go-systemd/v22/daemon"

	"github.com/sysinit-go/daemonkit"
)

// Context holds the state one daemonised process accumulates: its
// options and, once Pidfile has been called, the path and locked file
// descriptor of its pidfile. The original keeps this as process-global
// state behind a single mutex; Context makes that state an explicit
// value so tests can run more than one in the same process, while
// Default gives callers that only ever want one the same one-liner
// ergonomics the original's bare function calls had.
type Context struct {
	mu   sync.Mutex
	opts Options

	pidPath string
	pidFD   int
}

// New creates a Context configured by opts.
func New(opts ...Option) *Context {
	return &Context{opts: buildOptions(opts...), pidFD: -1}
}

var defaultContext = New()

// Default returns the package-level Context used by the package-level
// convenience functions (Init, Pidfile, Close, ...). Configure it via
// Configure before calling them, or construct your own Context with New
// if you need more than one in the same process.
func Default() *Context { return defaultContext }

// Configure replaces Default's options.
func Configure(opts ...Option) {
	defaultContext.mu.Lock()
	defer defaultContext.mu.Unlock()
	defaultContext.opts = buildOptions(opts...)
}

// PidPath returns the path of c's pidfile, empty until Pidfile has
// succeeded.
func (c *Context) PidPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pidPath
}

// Close releases c's pidfile lock and descriptor and removes the
// pidfile, then sends sd_notify STOPPING=1 if c was configured with
// WithSystemdNotify. It does not signal, wait for, or otherwise affect
// any child processes c's owner may have started — matching the
// original, which only ever cleaned up its own bookkeeping here, never
// the children a daemon happens to be supervising.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.closeLocked()
	if c.opts.NotifySystemd {
		_, _ = sdnotify.SdNotify(false, sdnotify.SdNotifyStopping)
	}
	return err
}

func (c *Context) closeLocked() error {
	const op = "daemon.Context.Close"

	var outerErr error
	if c.pidFD >= 0 {
		if err := unix.Close(c.pidFD); err != nil {
			outerErr = daemonkit.New(op, daemonkit.Unknown, err)
		}
		c.pidFD = -1
	}
	if c.pidPath != "" {
		if err := unix.Unlink(c.pidPath); err != nil && err != unix.ENOENT {
			if outerErr == nil {
				outerErr = daemonkit.New(op, daemonkit.Unknown, err)
			}
		}
		c.pidPath = ""
	}
	return outerErr
}
