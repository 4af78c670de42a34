// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package pathsafe canonicalises paths without dereferencing symlinks and
// audits whether a path is safe to read as privileged configuration: no
// directory in its fully-resolved chain may be writable by anyone other
// than its owner.
package pathsafe

import (
	"os"
	"strings"

	"github.com/sysinit-go/daemonkit"
)

// Absolute produces an absolute, lexically canonical path without
// dereferencing symlinks. It collapses "//", "/./" and "<dir>/../"
// segments and strips a trailing "/" unless the result is exactly "/".
// The only filesystem access is getcwd (via os.Getwd) when path is
// relative; it is otherwise pure.
func Absolute(path string) (string, error) {
	const op = "pathsafe.Absolute"

	if path == "" {
		return "", daemonkit.New(op, daemonkit.InvalidArgument, nil)
	}

	abs := path
	if !strings.HasPrefix(path, "/") {
		cwd, err := os.Getwd()
		if err != nil {
			return "", daemonkit.New(op, daemonkit.Unknown, err)
		}
		abs = cwd + "/" + path
	}

	return clean(abs), nil
}

// clean implements the lexical collapsing rules from spec.md §4.P: "//"
// -> "/", "/./" -> "/", "<dir>/../" -> one level up, with the root's
// parent staying root, and no trailing "/" unless the whole path is "/".
func clean(abs string) string {
	segments := strings.Split(abs, "/")
	out := make([]string, 0, len(segments))

	for _, seg := range segments {
		switch seg {
		case "", ".":
			// collapses repeated separators and "." components
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}

	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}
