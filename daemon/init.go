// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	sdnotify "github.com/coreos/go-systemd/v22/daemon"

	"github.com/sysinit-go/daemonkit"
	"github.com/sysinit-go/daemonkit/lim"
)

// stageEnv carries which stage of the detach sequence a re-exec'd
// process is in. The original achieves the same "can never reacquire a
// controlling terminal" guarantee with two raw fork(2) calls; Go's
// runtime starts multiple OS threads before main ever runs, which makes
// a bare fork(2) unsafe (only the calling thread survives into the
// child, every other goroutine's thread just vanishes). Re-executing
// the binary gives each stage a clean, fully-started Go runtime instead,
// which is the idiom every production Go daemoniser uses in place of a
// literal fork().
const stageEnv = "DAEMONKIT_STAGE"

const (
	stageSessionLeader = "session-leader" // post first fork, about to setsid
	stageDaemon        = "daemon"         // post second fork, the final process
)

// Init performs the full daemonisation sequence: ignore SIGHUP (which a
// session leader's controlling terminal would otherwise deliver when the
// terminal disconnects mid-detach), fork twice with the parent exiting
// after each (skipped entirely when Inetd is set, since an inetd-launched
// process must keep its inherited socket descriptors exactly as they are,
// or when NotifySystemd is set, since a systemd-supervised process is
// already session-leading and detached), chdir to "/", reset the umask,
// close and redirect standard descriptors, optionally disable core
// dumps, acquire name's pidfile if name is non-empty, and finally send an
// sd_notify READY=1 if NotifySystemd is set.
//
// Init re-executes the running binary to implement each "fork": see
// stageEnv. Callers whose argv/environment construction has side
// effects (temp files, consumed stdin, …) should account for running
// twice.
func (c *Context) Init(name string, opts ...Option) error {
	const op = "daemon.Context.Init"

	c.mu.Lock()
	for _, opt := range opts {
		opt(&c.opts)
	}
	inetd := c.opts.Inetd
	delay := c.opts.ExitDelay
	preventCore := c.opts.PreventCore
	notifySystemd := c.opts.NotifySystemd
	c.mu.Unlock()

	if delay == 0 {
		if msec, ok := exitDelayFromEnv(); ok {
			delay = msec
		}
	}

	signal.Ignore(syscall.SIGHUP)

	// A systemd-supervised service is already detached from a controlling
	// terminal and already runs in its own session; forking again would
	// just orphan the pid systemd is tracking. inetd is skipped for the
	// same reason the descriptor-closing step below is: the caller's
	// inherited descriptors and process identity must survive untouched.
	skipFork := inetd || notifySystemd

	if !skipFork {
		switch os.Getenv(stageEnv) {
		case "":
			if err := reexec(stageSessionLeader); err != nil {
				return daemonkit.New(op, daemonkit.Unknown, err)
			}
			exitParent(delay)

		case stageSessionLeader:
			if _, err := unix.Setsid(); err != nil {
				return daemonkit.New(op, daemonkit.Unknown, err)
			}
			if err := reexec(stageDaemon); err != nil {
				return daemonkit.New(op, daemonkit.Unknown, err)
			}
			exitParent(delay)
		}
	}

	if err := unix.Chdir("/"); err != nil {
		return daemonkit.New(op, daemonkit.Unknown, err)
	}
	unix.Umask(0)

	if !inetd {
		if err := closeDescriptorsAndRedirectStdio(); err != nil {
			return err
		}
	}

	if preventCore {
		if err := PreventCore(); err != nil {
			return err
		}
	}

	if name != "" {
		if err := c.Pidfile(name); err != nil {
			return err
		}
	}

	if notifySystemd {
		_, _ = sdnotify.SdNotify(false, sdnotify.SdNotifyReady)
	}

	return nil
}

// reexec starts a copy of the running binary with stageEnv set to
// stage, inheriting argv and the environment. It never sets Setsid in
// the child's exec attributes itself: the session-leader stage calls
// unix.Setsid() explicitly once it's running, since setsid(2) fails
// with EPERM if the caller is already a process-group leader — which
// it would be had Setsid already been requested at exec time.
func reexec(stage string) error {
	self, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Env = append(os.Environ(), stageEnv+"="+stage)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// exitParent implements the original's parent-exits-after-an-optional-delay
// step: after forking, the parent waits delay (if any) then exits
// successfully, leaving the child to carry on daemonising.
//
// DAEMON_INIT_EXIT_DELAY_MSEC in the original is read as milliseconds
// but, because usleep(3) historically rejects values of a full second or
// more, has to be split into a whole-second sleep(3) plus a sub-second
// usleep(3) remainder — and a long-standing bug there computes that
// remainder with "& 1000" instead of "% 1000". Go's time.Sleep has no
// such sub-second ceiling, so the split (and the bug) simply don't
// arise here: the full delay is a single time.Sleep call.
func exitParent(delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}
	os.Exit(0)
}

func exitDelayFromEnv() (time.Duration, bool) {
	raw := os.Getenv("DAEMON_INIT_EXIT_DELAY_MSEC")
	if raw == "" {
		return 0, false
	}

	msec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || msec < 0 {
		return 0, false
	}
	return time.Duration(msec) * time.Millisecond, true
}

func closeDescriptorsAndRedirectStdio() error {
	const op = "daemon.closeDescriptorsAndRedirectStdio"

	open := lim.Open()
	for fd := 3; fd < open; fd++ {
		_ = unix.Close(fd)
	}

	devNull, err := unix.Open(os.DevNull, unix.O_RDWR, 0)
	if err != nil {
		return daemonkit.New(op, daemonkit.Unknown, err)
	}
	defer unix.Close(devNull)

	for _, fd := range []int{unix.Stdin, unix.Stdout, unix.Stderr} {
		_ = unix.Close(fd)
		if err := unix.Dup2(devNull, fd); err != nil {
			return daemonkit.New(op, daemonkit.Unknown, err)
		}
	}
	return nil
}

// PreventCore disables core dumps for the calling process by setting
// RLIMIT_CORE to zero, for daemons that chdir("/") and don't want a
// crash leaving a core file somewhere unexpected and unowned.
func PreventCore() error {
	const op = "daemon.PreventCore"

	rlimit := unix.Rlimit{Cur: 0, Max: 0}
	if err := unix.Setrlimit(unix.RLIMIT_CORE, &rlimit); err != nil {
		return daemonkit.New(op, daemonkit.Unknown, err)
	}
	return nil
}
