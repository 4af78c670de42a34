// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"github.com/hashicorp/go-hclog"

	"github.com/sysinit-go/daemonkit"
)

// Options configures Start.
type Options struct {
	// Name identifies the supervised process for logging and Status;
	// purely cosmetic.
	Name string

	Command string
	Args    []string
	Env     []string
	Dir     string

	// Pty, if true, runs Command attached to a pseudo-terminal instead
	// of plain pipes, for children that behave differently (line
	// buffering, colour output) when not attached to a tty.
	Pty bool

	// StdoutFifo and StderrFifo, if set, stream the process's stdout and
	// stderr to the named fifos via a LogStreamer each. Without Pty, a
	// fifo path left empty connects that stream to the null device. With
	// Pty, stdout and stderr both go to the pty, which is streamed to
	// StdoutFifo when that is set; StderrFifo is not used.
	StdoutFifo string
	StderrFifo string

	Logger hclog.Logger
}

// Start launches opts.Command and returns a Handle tracking it. The
// returned Handle's background goroutine begins waiting on the process
// immediately; callers should not call cmd.Wait themselves.
func Start(ctx context.Context, opts Options) (*Handle, error) {
	const op = "supervisor.Start"

	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("supervisor").With("name", opts.Name)

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir

	runCtx, cancel := context.WithCancel(ctx)

	h := &Handle{
		logger:     logger,
		name:       opts.Name,
		cmd:        cmd,
		state:      StatePending,
		startedAt:  time.Now(),
		ctx:        runCtx,
		cancelFunc: cancel,
		waitCh:     make(chan struct{}),
	}

	if opts.StdoutFifo != "" {
		h.stdoutStream = NewLogStreamer(logger.Named("stdout"), opts.StdoutFifo, nil)
	}
	if opts.StderrFifo != "" {
		h.stderrStream = NewLogStreamer(logger.Named("stderr"), opts.StderrFifo, nil)
	}

	if opts.Pty {
		master, err := pty.Start(cmd)
		if err != nil {
			cancel()
			return nil, daemonkit.New(op, daemonkit.Unknown, err)
		}
		h.ptyMaster = master
		if h.stdoutStream != nil {
			h.stdoutStream.source = master
		}
		// stderr shares the pty with stdout, so there is no separate
		// stderr source to stream.
		h.stderrStream = nil
	} else {
		if h.stdoutStream != nil {
			stdout, err := cmd.StdoutPipe()
			if err != nil {
				cancel()
				return nil, daemonkit.New(op, daemonkit.Unknown, err)
			}
			h.stdoutStream.source = stdout
		}
		if h.stderrStream != nil {
			stderr, err := cmd.StderrPipe()
			if err != nil {
				cancel()
				return nil, daemonkit.New(op, daemonkit.Unknown, err)
			}
			h.stderrStream.source = stderr
		}
		if err := cmd.Start(); err != nil {
			cancel()
			return nil, daemonkit.New(op, daemonkit.Unknown, err)
		}
	}

	h.pid = cmd.Process.Pid
	h.state = StateRunning

	if h.stdoutStream != nil {
		go func() {
			if err := h.stdoutStream.Stream(runCtx); err != nil {
				logger.Warn("stdout streaming ended with error", "error", err)
			}
		}()
	}
	if h.stderrStream != nil {
		go func() {
			if err := h.stderrStream.Stream(runCtx); err != nil {
				logger.Warn("stderr streaming ended with error", "error", err)
			}
		}()
	}

	go h.run()

	return h, nil
}
