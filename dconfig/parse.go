// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package dconfig parses the daemon configuration file grammar: one
// directive per logical line, "#" to end-of-line comments, and a
// trailing backslash that joins a line to the next. It also provides a
// fsnotify-backed Watcher that re-parses the file whenever it changes on
// disk, for daemons that want to pick up configuration edits without a
// restart.
package dconfig

import (
	"bufio"
	"io"
	"strings"

	"github.com/sysinit-go/daemonkit"
	"github.com/sysinit-go/daemonkit/fio"
)

// Callback is invoked once per logical (continuation-joined,
// comment-stripped) non-blank line. lineno is the line number on which
// the logical line STARTED, even if it spans several physical lines via
// trailing backslashes — matching the original grammar's line-number
// accounting, which callers rely on for useful error messages.
type Callback func(lineno int, line string) error

// Parse reads r as a daemon config file and invokes cb for each logical
// line. A "#" begins a comment that runs to the end of its physical
// line, even when that physical line also ends in a continuation
// backslash — the backslash is only a continuation marker when it is
// genuinely the last character of what's left after the comment is
// stripped. Blank logical lines (empty, or entirely comment) are
// skipped without invoking cb.
func Parse(r io.Reader, cb Callback) error {
	const op = "dconfig.Parse"

	reader := bufio.NewReader(r)

	var logical strings.Builder
	startLineno := 0
	lineno := 0

	flush := func() error {
		text := logical.String()
		logical.Reset()
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return cb(startLineno, text)
	}

	for {
		line, err := fio.ReadLine(reader)
		if err != nil {
			if err == io.EOF {
				if logical.Len() > 0 {
					return flush()
				}
				return nil
			}
			return daemonkit.New(op, daemonkit.Unknown, err)
		}
		lineno++
		line = strings.TrimSuffix(line, "\n")

		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimRight(line, " \t")

		continuation := strings.HasSuffix(line, "\\")
		if continuation {
			line = strings.TrimRight(strings.TrimSuffix(line, "\\"), " \t")
		}

		if logical.Len() == 0 {
			startLineno = lineno
		} else if logical.Len() > 0 {
			logical.WriteByte(' ')
		}
		logical.WriteString(line)

		if continuation {
			continue
		}

		if err := flush(); err != nil {
			return err
		}
	}
}
