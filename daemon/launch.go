// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"os"

	"golang.org/x/sys/unix"
)

// StartedByInit reports whether this process's parent is init (pid 1),
// as happens when a process is launched directly from an init system's
// own fork/exec rather than from an interactive shell.
func StartedByInit() bool {
	return os.Getppid() == 1
}

// StartedByInetd reports whether file descriptor 0 is a socket, the
// signature of a process launched by inetd or a compatible super-server
// rather than exec'd with an ordinary terminal or pipe on stdin.
func StartedByInetd() bool {
	_, err := unix.GetsockoptInt(0, unix.SOL_SOCKET, unix.SO_TYPE)
	return err == nil
}

// StartedBySystemd reports whether this process was launched by
// systemd with a notification socket available, the signal that
// sd_notify calls in Init will actually reach the service manager.
func StartedBySystemd() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}
