// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package supervisor runs and tracks a single child process on behalf
// of a daemon: it starts the command (optionally under a pty), streams
// its stdout/stderr through fifos for an external log collector to
// attach to, and exposes the process's lifecycle (running, exited,
// exit code) and the means to signal or stop it.
package supervisor

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/sysinit-go/daemonkit"
)

// State is the lifecycle state of a supervised process.
type State int

const (
	// StatePending means Start has been called but the process has not
	// yet been observed to exit.
	StatePending State = iota
	// StateRunning means the process is known to be alive.
	StateRunning
	// StateExited means the process exited, with ExitResult describing
	// how.
	StateExited
	// StateUnknown means Wait on the underlying process returned an
	// error other than a normal exit status (e.g. the process could not
	// be waited on at all).
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ExitResult describes how a supervised process ended.
type ExitResult struct {
	ExitCode int
	Signal   syscall.Signal
	Err      error
}

// Status is a point-in-time snapshot of a Handle's state.
type Status struct {
	Name        string
	State       State
	Pid         int
	StartedAt   time.Time
	CompletedAt time.Time
	ExitResult  *ExitResult
}

// Handle tracks one supervised child process: its exec.Cmd, its
// lifecycle state, and the log streamers copying its stdout/stderr to
// fifos. Every field is guarded by stateLock since Status/IsRunning can
// be called concurrently with the goroutine started by Start that
// waits on the process and updates these fields when it exits.
type Handle struct {
	stateLock sync.RWMutex

	logger hclog.Logger
	name   string
	cmd    *exec.Cmd

	state       State
	startedAt   time.Time
	completedAt time.Time
	exitResult  *ExitResult
	pid         int

	ctx        context.Context
	cancelFunc context.CancelFunc
	waitCh     chan struct{}

	ptyMaster *os.File

	stdoutStream *LogStreamer
	stderrStream *LogStreamer
}

// Status returns a snapshot of h's current lifecycle state.
func (h *Handle) Status() Status {
	h.stateLock.RLock()
	defer h.stateLock.RUnlock()

	return Status{
		Name:        h.name,
		State:       h.state,
		Pid:         h.pid,
		StartedAt:   h.startedAt,
		CompletedAt: h.completedAt,
		ExitResult:  h.exitResult,
	}
}

// IsRunning reports whether h's process is believed to still be alive.
func (h *Handle) IsRunning() bool {
	h.stateLock.RLock()
	defer h.stateLock.RUnlock()
	return h.state == StateRunning
}

// Pid returns the supervised process's pid, valid once Start has
// returned successfully.
func (h *Handle) Pid() int {
	h.stateLock.RLock()
	defer h.stateLock.RUnlock()
	return h.pid
}

// Wait returns a channel that's closed once the supervised process has
// exited and h's state has been updated to reflect it.
func (h *Handle) Wait() <-chan struct{} {
	return h.waitCh
}

// Signal delivers sig to the supervised process.
func (h *Handle) Signal(sig syscall.Signal) error {
	const op = "supervisor.Handle.Signal"

	h.stateLock.RLock()
	cmd := h.cmd
	running := h.state == StateRunning || h.state == StatePending
	h.stateLock.RUnlock()

	if !running || cmd.Process == nil {
		return daemonkit.New(op, daemonkit.NoSuchProcess, nil)
	}
	if err := cmd.Process.Signal(sig); err != nil {
		return daemonkit.New(op, daemonkit.Unknown, err)
	}
	return nil
}

// Stop signals the process with sig and waits up to grace for it to
// exit on its own; if it hasn't by then, it's sent SIGKILL. Stop
// returns once the process has actually exited or the context is
// cancelled, whichever comes first.
func (h *Handle) Stop(ctx context.Context, sig syscall.Signal, grace time.Duration) error {
	if err := h.Signal(sig); err != nil {
		return err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.Wait():
		return nil
	case <-timer.C:
		if err := h.Signal(syscall.SIGKILL); err != nil {
			return err
		}
		select {
		case <-h.Wait():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run waits for the process to exit and records its final state. It's
// started as a goroutine by Start and must run exactly once per Handle.
func (h *Handle) run() {
	err := h.cmd.Wait()

	defer func() {
		close(h.waitCh)
		if h.cancelFunc != nil {
			h.cancelFunc()
		}
	}()

	h.stateLock.Lock()
	defer h.stateLock.Unlock()

	result := &ExitResult{}
	switch e := err.(type) {
	case nil:
		h.state = StateExited
	case *exec.ExitError:
		result.ExitCode = e.ExitCode()
		if status, ok := e.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			result.Signal = status.Signal()
		}
		h.state = StateExited
	default:
		result.Err = err
		h.state = StateUnknown
	}

	h.exitResult = result
	h.completedAt = time.Now()
}
