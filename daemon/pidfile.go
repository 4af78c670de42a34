// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sysinit-go/daemonkit"
	"github.com/sysinit-go/daemonkit/fio"
	"github.com/sysinit-go/daemonkit/lim"
)

// defaultPidDir returns "/var/run" for uid 0 and "/tmp" otherwise,
// matching the original's rationale: only root can usually write to
// /var/run, so an unprivileged daemon falls back to /tmp.
func defaultPidDir() string {
	if os.Getuid() == 0 {
		return "/var/run"
	}
	return "/tmp"
}

// constructPidfilePath resolves name to a pidfile path: used verbatim
// if already absolute, otherwise "{pidDir}/{name}.pid" with pidDir
// defaulting per defaultPidDir.
func constructPidfilePath(pidDir, name string) (string, error) {
	const op = "daemon.constructPidfilePath"

	if name == "" {
		return "", daemonkit.New(op, daemonkit.InvalidArgument, nil)
	}
	if strings.HasPrefix(name, "/") {
		if len(name) > lim.Path() {
			return "", daemonkit.New(op, daemonkit.NameTooLong, nil)
		}
		return name, nil
	}

	if pidDir == "" {
		pidDir = defaultPidDir()
	}
	path := filepath.Join(pidDir, name+".pid")
	if len(path) > lim.Path() {
		return "", daemonkit.New(op, daemonkit.NameTooLong, nil)
	}
	return path, nil
}

// lockPidfile implements the original's retry loop: create the pidfile
// exclusively; if it already exists, open it for read-write and try to
// take an exclusive lock, which fails immediately if another live
// daemon holds it. If the file vanished between the EEXIST and the
// open (a daemon that just exited and cleaned up), or the file we
// locked isn't the same inode we just opened (a daemon that exited and
// a new one created a fresh pidfile in the same race window), start
// over rather than surfacing a spurious error: both are just lost races
// against another process's startup or shutdown, not failures.
func lockPidfile(path string) (int, error) {
	const op = "daemon.lockPidfile"

	for {
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o644)
		if err != nil {
			if err != unix.EEXIST {
				return -1, daemonkit.New(op, daemonkit.Unknown, err)
			}

			fd, err = unix.Open(path, unix.O_RDWR, 0)
			if err != nil {
				if err == unix.ENOENT {
					continue
				}
				return -1, daemonkit.New(op, daemonkit.Unknown, err)
			}
		}

		if lockErr := fio.Lock(fd, fio.SetLock, fio.WriteLock, unix.SEEK_SET, 0, 0); lockErr != nil {
			_ = unix.Close(fd)
			return -1, daemonkit.New(op, daemonkit.AlreadyInUse, lockErr)
		}

		var fstat, stat unix.Stat_t
		if err := unix.Fstat(fd, &fstat); err != nil {
			_ = unix.Close(fd)
			return -1, daemonkit.New(op, daemonkit.Unknown, err)
		}
		if err := unix.Stat(path, &stat); err != nil {
			_ = unix.Close(fd)
			if err == unix.ENOENT {
				continue
			}
			return -1, daemonkit.New(op, daemonkit.Unknown, err)
		}
		if fstat.Ino != stat.Ino {
			_ = unix.Close(fd)
			continue
		}

		if err := fio.SetCloseOnExec(fd); err != nil {
			_ = unix.Close(fd)
			return -1, err
		}

		return fd, nil
	}
}

// Pidfile constructs, locks, and writes this process's pid to the
// pidfile for name, under c's configured PidDir. The path is recorded
// on c before locking is attempted and cleared again if locking fails,
// since the file then belongs to another daemon. If writing the pid
// fails after the lock is taken, the pidfile is removed and the path
// cleared before Pidfile returns.
//
// Known accepted limitation (matches the original): nothing detects or
// repairs a pidfile that's unlinked out from under a running daemon by
// something else; the next daemon to start will simply win the race and
// create a new one.
func (c *Context) Pidfile(name string) error {
	const op = "daemon.Context.Pidfile"

	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := constructPidfilePath(c.opts.PidDir, name)
	if err != nil {
		return err
	}
	c.pidPath = path

	fd, err := lockPidfile(path)
	if err != nil {
		c.pidPath = ""
		return err
	}
	c.pidFD = fd

	buf := make([]byte, 32)
	n := copy(buf, fmt.Sprintf("%d\n", os.Getpid()))
	if _, err := unix.Pwrite(fd, buf[:n], 0); err != nil {
		_ = c.closeLocked()
		return daemonkit.New(op, daemonkit.Unknown, err)
	}
	if err := unix.Ftruncate(fd, int64(n)); err != nil {
		_ = c.closeLocked()
		return daemonkit.New(op, daemonkit.Unknown, err)
	}

	return nil
}

// readPidfile reads and parses the pid recorded at path.
func readPidfile(path string) (int, error) {
	const op = "daemon.readPidfile"

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, daemonkit.New(op, daemonkit.NoSuchProcess, err)
		}
		return 0, daemonkit.New(op, daemonkit.Unknown, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, daemonkit.New(op, daemonkit.InvalidArgument, err)
	}
	return pid, nil
}

// GetPid reads the pid recorded in name's pidfile without locking it,
// for tools (like a "status" CLI command) that only need to report what
// pid a daemon last recorded, not contend for the lock itself.
func GetPid(pidDir, name string) (int, error) {
	path, err := constructPidfilePath(pidDir, name)
	if err != nil {
		return 0, err
	}
	return readPidfile(path)
}

// IsRunning reports whether the daemon named by name is still running,
// by attempting a non-blocking read lock on its pidfile, the same probe
// daemon_is_running uses: a live daemon holds a write lock on its
// pidfile for as long as it runs, and a read lock request conflicts
// with an existing write lock, so the attempt fails exactly when (and
// only when) the daemon is actually alive. This is deliberately not a
// kill(pid, 0) check against the recorded pid: if a crashed daemon
// leaves a stale pidfile behind and its pid number gets recycled by an
// unrelated process, kill(pid, 0) would wrongly report that process as
// the daemon still running, while the pidfile itself is correctly
// unlocked.
func IsRunning(pidDir, name string) (bool, error) {
	const op = "daemon.IsRunning"

	path, err := constructPidfilePath(pidDir, name)
	if err != nil {
		return false, err
	}

	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		if err == unix.ENOENT {
			return false, nil
		}
		return false, daemonkit.New(op, daemonkit.Unknown, err)
	}
	defer unix.Close(fd)

	if lockErr := fio.Lock(fd, fio.SetLock, fio.ReadLock, unix.SEEK_SET, 0, 0); lockErr != nil {
		if daemonkit.KindOf(lockErr) == daemonkit.WouldBlock {
			return true, nil
		}
		return false, daemonkit.New(op, daemonkit.Unknown, lockErr)
	}

	// The read lock was granted: nothing holds a conflicting write lock,
	// so no live daemon owns this pidfile.
	return false, nil
}
