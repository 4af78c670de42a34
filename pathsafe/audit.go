// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package pathsafe

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sysinit-go/daemonkit"
)

// maxSymlinkDepth bounds the recursion in IsSafe, mirroring the depth-16
// loop guard in the original implementation.
const maxSymlinkDepth = 16

// Unsafety names why a path failed Safe, naming the widest permission bit
// found on the offending directory.
type Unsafety int

const (
	// Safe means every directory in the path's resolved chain is writable
	// only by its owner.
	Safe Unsafety = iota
	// GroupWritable means a directory in the chain is group-writable.
	GroupWritable
	// WorldWritable means a directory in the chain is world-writable.
	WorldWritable
	// GroupAndWorldWritable means both bits are set on the same directory.
	GroupAndWorldWritable
)

func (u Unsafety) String() string {
	switch u {
	case Safe:
		return "safe"
	case GroupWritable:
		return "group writable"
	case WorldWritable:
		return "world writable"
	case GroupAndWorldWritable:
		return "group and world writable"
	default:
		return "unknown"
	}
}

// Report describes the outcome of an IsSafe audit.
type Report struct {
	Unsafety Unsafety
	// Path is the directory entry that triggered the verdict. Empty when
	// Unsafety is Safe.
	Path string
}

func (r Report) String() string {
	if r.Unsafety == Safe {
		return "safe"
	}
	return fmt.Sprintf("%s: %s", r.Path, r.Unsafety)
}

// IsSafe walks every directory component of path's fully-resolved chain
// (following symlinks explicitly, since a bare lstat of the final
// component would miss an unsafe directory reached only through a
// symlink) and reports the first group- or world-writable directory it
// finds. path must already be absolute and lexically clean, e.g. the
// output of Absolute.
//
// Unlike Absolute, IsSafe does touch the filesystem: it lstats every
// prefix of path and, on symlinks, readlinks and recurses.
func IsSafe(path string) (Report, error) {
	return isSafe(path, 0)
}

func isSafe(path string, depth int) (Report, error) {
	const op = "pathsafe.IsSafe"

	if depth > maxSymlinkDepth {
		return Report{}, daemonkit.New(op, daemonkit.SymlinkLoop, nil)
	}

	prefixes := prefixesOf(path)

	// Walk rightmost (the full path) to leftmost ("/"), matching the
	// original's traversal order; the verdict is the same regardless of
	// direction, since any unsafe directory in the chain is disqualifying,
	// but this keeps parity with the reference algorithm.
	for i := len(prefixes) - 1; i >= 0; i-- {
		prefix := prefixes[i]

		var st unix.Stat_t
		if err := unix.Lstat(prefix, &st); err != nil {
			return Report{}, daemonkit.New(op, daemonkit.Unknown, err)
		}

		if st.Mode&unix.S_IFMT == unix.S_IFLNK {
			buf := make([]byte, 4096)
			n, rerr := unix.Readlink(prefix, buf)
			if rerr != nil {
				return Report{}, daemonkit.New(op, daemonkit.Unknown, rerr)
			}
			target := string(buf[:n])

			resolved := target
			if !strings.HasPrefix(target, "/") {
				resolved = parentOf(prefix) + "/" + target
			}

			clean, err := Absolute(resolved)
			if err != nil {
				return Report{}, err
			}

			report, err := isSafe(clean, depth+1)
			if err != nil {
				return Report{}, err
			}
			if report.Unsafety != Safe {
				return report, nil
			}
			continue
		}

		groupW := st.Mode&unix.S_IWGRP != 0
		worldW := st.Mode&unix.S_IWOTH != 0

		switch {
		case groupW && worldW:
			return Report{Unsafety: GroupAndWorldWritable, Path: prefix}, nil
		case groupW:
			return Report{Unsafety: GroupWritable, Path: prefix}, nil
		case worldW:
			return Report{Unsafety: WorldWritable, Path: prefix}, nil
		}
	}

	return Report{Unsafety: Safe}, nil
}

// prefixesOf returns every path prefix of an absolute, clean path,
// starting with "/" and ending with path itself.
func prefixesOf(path string) []string {
	if path == "/" {
		return []string{"/"}
	}

	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	prefixes := make([]string, 0, len(parts)+1)
	prefixes = append(prefixes, "/")

	cur := ""
	for _, p := range parts {
		cur += "/" + p
		prefixes = append(prefixes, cur)
	}
	return prefixes
}

func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}
