// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package lim answers "how big can a path be" and "how many descriptors
// can this process hold", falling back to documented defaults when the
// runtime can't say. Nothing here is fallible: these are advisory limits,
// not guarantees, so every function returns a plain value.
package lim

import "golang.org/x/sys/unix"

// PathFallback and OpenFallback are used when the runtime limit is
// indeterminate (pathconf/sysconf returning -1 with no errno, or the
// syscall itself failing).
const (
	PathFallback = 1024
	OpenFallback = 1024
)

// Path returns the maximum length of a path name on this system.
//
// Unlike Open, this has no syscall backing on Linux: pathconf(_PC_PATH_MAX)
// is a libc-level convention, not a kernel limit, and cgo-free Go code has
// no portable way to ask for it. We always return the documented
// fallback, which matches what every mainstream Linux filesystem reports
// anyway.
func Path() int {
	return PathFallback
}

// Open returns the maximum number of open file descriptors this process
// may hold, or OpenFallback if the limit can't be determined.
func Open() int {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return OpenFallback
	}
	if rlimit.Cur == unix.RLIM_INFINITY || rlimit.Cur <= 0 {
		return OpenFallback
	}
	return int(rlimit.Cur)
}
