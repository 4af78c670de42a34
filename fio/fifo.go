// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package fio

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/sysinit-go/daemonkit"
)

// fifoExists reports whether path refers to a fifo. If path doesn't exist
// it returns false with no error. If path exists but is not a fifo and
// prepare is true, it is unlinked and fifoExists returns false.
func fifoExists(path string, prepare bool) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if err == unix.ENOENT {
			return false, nil
		}
		return false, daemonkit.New("fio.fifoExists", daemonkit.Unknown, err)
	}

	if st.Mode&unix.S_IFMT != unix.S_IFIFO {
		if prepare {
			_ = unix.Unlink(path)
		}
		return false, nil
	}

	return true, nil
}

// fifoHasReader reports whether path refers to a fifo that already has a
// reader process attached, by attempting a non-blocking write-only open:
// POSIX fails that with ENXIO precisely when no reader exists.
func fifoHasReader(path string, prepare bool) (bool, error) {
	exists, err := fifoExists(path, prepare)
	if err != nil || !exists {
		return false, err
	}

	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if err == unix.ENXIO {
			return false, nil
		}
		return false, daemonkit.New("fio.fifoHasReader", daemonkit.Unknown, err)
	}
	_ = unix.Close(fd)
	return true, nil
}

// FifoOpen creates (or reuses) a fifo at path and returns a read-only file
// and a write-only file for it, guaranteeing at most one reader at a time.
//
// Algorithm (per the classic "exclusive fifo reader" idiom):
//  1. Fail with AlreadyInUse if path is already a fifo with a reader
//     attached.
//  2. mkfifo(path, mode); tolerate EEXIST.
//  3. Open read-only + nonblocking, so step 4 never blocks.
//  4. Sanity-check the opened fd is still a fifo (someone may have raced
//     us and replaced it between step 1 and here).
//  5. Open write-only. This guarantees a writer always exists, so the
//     read side never observes EOF on an otherwise idle fifo; relying on
//     O_RDWR for this is explicitly undefined by POSIX.
//  6. If lock is true, take an exclusive F_WRLCK on the write fd.
//     EOPNOTSUPP/ENOTSUP/EBADF (platforms that can't lock fifos, e.g.
//     FreeBSD and macOS) are tolerated; EACCES/EAGAIN means another
//     process won the race and is reported as AlreadyInUse.
//  7. Put the read fd back into blocking mode.
//
// On any failure after mkfifo, if this call created the fifo it is
// unlinked before returning.
func FifoOpen(path string, mode os.FileMode, lock bool) (read, write *os.File, err error) {
	const op = "fio.FifoOpen"

	hasReader, err := fifoHasReader(path, true)
	if err != nil {
		return nil, nil, err
	}
	if hasReader {
		return nil, nil, daemonkit.New(op, daemonkit.AlreadyInUse, unix.EADDRINUSE)
	}

	mine := unix.Mkfifo(path, uint32(mode.Perm())) == nil

	cleanup := func() {
		if mine {
			_ = unix.Unlink(path)
		}
	}

	rfd, oerr := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if oerr != nil {
		cleanup()
		return nil, nil, daemonkit.New(op, daemonkit.Unknown, oerr)
	}

	var st unix.Stat_t
	if err := unix.Fstat(rfd, &st); err != nil || st.Mode&unix.S_IFMT != unix.S_IFIFO {
		_ = unix.Close(rfd)
		cleanup()
		if err == nil {
			err = unix.EINVAL
		}
		return nil, nil, daemonkit.New(op, daemonkit.Unknown, err)
	}

	wfd, oerr := unix.Open(path, unix.O_WRONLY, 0)
	if oerr != nil {
		_ = unix.Close(rfd)
		cleanup()
		return nil, nil, daemonkit.New(op, daemonkit.Unknown, oerr)
	}

	if lock {
		lockErr := Lock(wfd, SetLock, WriteLock, unix.SEEK_SET, 0, 0)
		if lockErr != nil {
			var derr *daemonkit.Error
			cause := lockErr
			if ok := asDaemonkitError(lockErr, &derr); ok {
				cause = derr.Err
			}
			if cause != unix.EOPNOTSUPP && cause != unix.ENOTSUP && cause != unix.EBADF {
				_ = unix.Close(rfd)
				_ = unix.Close(wfd)
				cleanup()
				if cause == unix.EACCES || cause == unix.EAGAIN {
					return nil, nil, daemonkit.New(op, daemonkit.AlreadyInUse, cause)
				}
				return nil, nil, daemonkit.New(op, daemonkit.Unknown, cause)
			}
		}
	}

	if err := unix.Fstat(wfd, &st); err != nil || st.Mode&unix.S_IFMT != unix.S_IFIFO {
		_ = unix.Close(rfd)
		_ = unix.Close(wfd)
		cleanup()
		if err == nil {
			err = unix.EINVAL
		}
		return nil, nil, daemonkit.New(op, daemonkit.Unknown, err)
	}

	if err := unix.SetNonblock(rfd, false); err != nil {
		_ = unix.Close(rfd)
		_ = unix.Close(wfd)
		cleanup()
		return nil, nil, daemonkit.New(op, daemonkit.Unknown, err)
	}

	return os.NewFile(uintptr(rfd), path), os.NewFile(uintptr(wfd), path), nil
}

// asDaemonkitError is a small helper so FifoOpen can inspect the cause
// wrapped by Lock without importing errors.As at every call site.
func asDaemonkitError(err error, target **daemonkit.Error) bool {
	e, ok := err.(*daemonkit.Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
