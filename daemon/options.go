// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package daemon orchestrates POSIX daemonisation: the double-fork,
// session leadership, pidfile acquisition, privilege dropping, and
// descriptor/stdio cleanup a long-running background process needs, in
// the same order and with the same edge-case handling as the original C
// daemon library this package is a port of.
package daemon

import "time"

// Options configures a Context. Use the With* functions with New rather
// than constructing Options directly, so new fields don't break
// existing callers — the same functional-options shape the teacher uses
// for its own driver configuration.
type Options struct {
	// PidDir overrides where the pidfile is created. Empty means the
	// default: "/var/run" for uid 0, "/tmp" otherwise.
	PidDir string

	// ExitDelay is how long the parent of each fork waits before
	// exiting, giving an init system or the shell a moment to observe
	// it. Zero means Init takes the delay from the
	// DAEMON_INIT_EXIT_DELAY_MSEC environment variable (milliseconds) if
	// that is set, and uses no delay otherwise.
	ExitDelay time.Duration

	// Inetd, if true, tells Init this process was launched by inetd (or
	// a compatible super-server): stdin/stdout/stderr are a live socket
	// and must not be closed or redirected to /dev/null.
	Inetd bool

	// PreventCore, if true, sets RLIMIT_CORE to zero during Init, the
	// same way the original does for daemons that don't want core dumps
	// landing in whatever directory they happen to chdir into.
	PreventCore bool

	// NotifySystemd, if true, Init skips the re-exec/fork sequence and
	// sends a systemd "READY=1" readiness notification once
	// daemonisation completes, via sd_notify; Close sends "STOPPING=1".
	// The notifications themselves are no-ops when NOTIFY_SOCKET isn't
	// set in the environment; the fork sequence is skipped regardless.
	NotifySystemd bool
}

// Option mutates an Options value.
type Option func(*Options)

// WithPidDir overrides the directory pidfiles are created in.
func WithPidDir(dir string) Option {
	return func(o *Options) { o.PidDir = dir }
}

// WithExitDelay sets how long each fork's parent waits before exiting.
func WithExitDelay(d time.Duration) Option {
	return func(o *Options) { o.ExitDelay = d }
}

// WithInetd marks the process as launched by inetd or a compatible
// super-server.
func WithInetd(inetd bool) Option {
	return func(o *Options) { o.Inetd = inetd }
}

// WithPreventCore enables zeroing RLIMIT_CORE during Init.
func WithPreventCore(prevent bool) Option {
	return func(o *Options) { o.PreventCore = prevent }
}

// WithSystemdNotify enables sending sd_notify READY=1 once Init
// completes.
func WithSystemdNotify(notify bool) Option {
	return func(o *Options) { o.NotifySystemd = notify }
}

func buildOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
