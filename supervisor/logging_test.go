// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/hashicorp/go-hclog"
)

func TestLogStreamer_CopiesSourceToFifo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.fifo")
	require.NoError(t, unix.Mkfifo(path, 0o600))

	readDone := make(chan string, 1)
	go func() {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			readDone <- ""
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		readDone <- string(data)
	}()

	ls := NewLogStreamer(hclog.NewNullLogger(), path, strings.NewReader("hello from the child\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ls.Stream(ctx))

	select {
	case got := <-readDone:
		require.Equal(t, "hello from the child\n", got)
	case <-time.After(2 * time.Second):
		t.Fatal("reader never saw data")
	}
}

func TestIsEPIPE_DetectsClosedPipe(t *testing.T) {
	require.True(t, isEPIPE(io.ErrClosedPipe))
	require.False(t, isEPIPE(nil))
	require.False(t, isEPIPE(io.EOF))
}
