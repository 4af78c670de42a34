// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"io"
	"os"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/sysinit-go/daemonkit"
)

// LogStreamer copies everything read from source to the fifo at
// fifoPath, for a daemon that wants a supervised process's output
// available to an external log collector without that collector
// needing to know the process exists.
type LogStreamer struct {
	logger   hclog.Logger
	fifoPath string
	source   io.Reader
	writer   io.Writer // overridable for tests
}

// NewLogStreamer creates a LogStreamer for fifoPath. source is normally
// set by Start once the supervised command's stdout/stderr pipe (or pty
// master) is known; a nil source here is filled in before Stream is
// called.
func NewLogStreamer(logger hclog.Logger, fifoPath string, source io.Reader) *LogStreamer {
	return &LogStreamer{
		logger:   logger,
		fifoPath: fifoPath,
		source:   source,
	}
}

// Stream opens fifoPath for writing — which blocks until a reader
// attaches, the same backpressure the fifo itself provides — and copies
// from source until it hits EOF, ctx is cancelled, or an error other
// than the consumer disconnecting occurs.
func (ls *LogStreamer) Stream(ctx context.Context) error {
	const op = "supervisor.LogStreamer.Stream"

	fifo, err := os.OpenFile(ls.fifoPath, os.O_WRONLY, 0)
	if err != nil {
		return daemonkit.New(op, daemonkit.Unknown, err)
	}
	defer fifo.Close()

	ls.writer = fifo

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(ls.writer, ls.source)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil && !isEPIPE(err) {
			return daemonkit.New(op, daemonkit.Unknown, err)
		}
		if err != nil {
			ls.logger.Debug("log consumer disconnected", "error", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// isEPIPE reports whether err indicates the fifo's reader went away,
// which is a routine occurrence (the collector restarted, or was never
// attached) rather than a failure worth propagating.
func isEPIPE(err error) bool {
	if err == nil {
		return false
	}
	if err == io.ErrClosedPipe {
		return true
	}
	if pathErr, ok := err.(*os.PathError); ok {
		if errno, ok := pathErr.Err.(syscall.Errno); ok {
			return errno == syscall.EPIPE
		}
	}
	return false
}
