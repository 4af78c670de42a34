// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hashicorp/consul-template/signals"

	"github.com/sysinit-go/daemonkit"
)

// Stop signals the process recorded in name's pidfile. sigName is
// looked up in the name table consul-template uses for its own
// "-signal" flags, with or without the "SIG" prefix ("SIGTERM", "TERM",
// "HUP", ...), so callers and CLI flags can use whichever spelling is
// handy; an empty sigName means SIGTERM.
//
// Stop follows daemon_stop's lock-probe algorithm rather than trusting
// the recorded pid outright: it first tries to acquire the pidfile's
// lock itself, exactly as Pidfile does. If that succeeds, no daemon
// holds the lock — the pidfile is stale (left behind by a crash), so
// Stop releases the lock, unlinks the pidfile, and reports
// NoSuchProcess, the same as the original returning ESRCH. Only when
// the lock is already held (AlreadyInUse) does Stop read the recorded
// pid and signal it; this avoids signalling an unrelated process that
// happens to have reused a crashed daemon's old pid.
func Stop(pidDir, name, sigName string) error {
	const op = "daemon.Stop"

	sig := syscall.SIGTERM
	if sigName != "" {
		looked, ok := signals.SignalLookup[sigName]
		if !ok {
			looked, ok = signals.SignalLookup["SIG"+sigName]
		}
		if !ok {
			return daemonkit.New(op, daemonkit.InvalidArgument, nil)
		}
		s, ok := looked.(syscall.Signal)
		if !ok {
			return daemonkit.New(op, daemonkit.InvalidArgument, nil)
		}
		sig = s
	}

	path, err := constructPidfilePath(pidDir, name)
	if err != nil {
		return err
	}

	fd, lockErr := lockPidfile(path)
	if lockErr == nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return daemonkit.New(op, daemonkit.NoSuchProcess, nil)
	}
	if daemonkit.KindOf(lockErr) != daemonkit.AlreadyInUse {
		return lockErr
	}

	pid, err := readPidfile(path)
	if err != nil {
		return err
	}

	if err := syscall.Kill(pid, sig); err != nil {
		if err == syscall.ESRCH {
			return daemonkit.New(op, daemonkit.NoSuchProcess, err)
		}
		if err == syscall.EPERM {
			return daemonkit.New(op, daemonkit.PermissionDenied, err)
		}
		return daemonkit.New(op, daemonkit.Unknown, err)
	}
	return nil
}
