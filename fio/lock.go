// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package fio provides the POSIX file-I/O primitives daemonkit builds on:
// advisory fcntl locks, a fifo opener that guarantees a single reader, and
// a line reader that normalises every common line ending. It reaches past
// the standard library straight to golang.org/x/sys/unix wherever Go's
// os package doesn't expose the needed syscall (mkfifo, whole-file
// fcntl locks), the way opencoff/go-fio and tmc/macgo do.
package fio

import (
	"golang.org/x/sys/unix"

	"github.com/sysinit-go/daemonkit"
)

// LockCmd selects blocking vs non-blocking semantics for Lock.
type LockCmd int

const (
	SetLock     LockCmd = unix.F_SETLK
	SetLockWait LockCmd = unix.F_SETLKW
)

// LockType selects the kind of advisory lock Lock applies or releases.
type LockType int16

const (
	ReadLock  LockType = unix.F_RDLCK
	WriteLock LockType = unix.F_WRLCK
	UnlockType LockType = unix.F_UNLCK
)

// Lock applies or releases a POSIX advisory lock on fd via fcntl(2). whence,
// start and length describe the region exactly as in lockf(3); whence ==
// unix.SEEK_SET, start == 0, length == 0 locks the whole file.
//
// A non-blocking SetLock attempt against a region locked by another
// process fails with a *daemonkit.Error of Kind WouldBlock: the platform's
// EACCES-or-EAGAIN distinction is collapsed into one discriminant, per
// spec, since callers only ever care that the file is "locked elsewhere".
func Lock(fd int, cmd LockCmd, typ LockType, whence int16, start, length int64) error {
	lock := unix.Flock_t{
		Type:   int16(typ),
		Whence: whence,
		Start:  start,
		Len:    length,
	}
	if err := unix.FcntlFlock(uintptr(fd), int(cmd), &lock); err != nil {
		if err == unix.EACCES || err == unix.EAGAIN {
			return daemonkit.New("fio.Lock", daemonkit.WouldBlock, err)
		}
		return daemonkit.New("fio.Lock", daemonkit.Unknown, err)
	}
	return nil
}

// SetCloseOnExec sets FD_CLOEXEC on fd so it is not inherited across exec.
func SetCloseOnExec(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return daemonkit.New("fio.SetCloseOnExec", daemonkit.Unknown, err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC); err != nil {
		return daemonkit.New("fio.SetCloseOnExec", daemonkit.Unknown, err)
	}
	return nil
}

// SetNonblock toggles O_NONBLOCK on fd.
func SetNonblock(fd int, nonblocking bool) error {
	if err := unix.SetNonblock(fd, nonblocking); err != nil {
		return daemonkit.New("fio.SetNonblock", daemonkit.Unknown, err)
	}
	return nil
}
