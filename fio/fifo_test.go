// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package fio

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sysinit-go/daemonkit"
)

func TestFifoOpen_CreatesAndAllowsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.fifo")

	read, write, err := FifoOpen(path, 0o600, true)
	require.NoError(t, err)
	defer read.Close()
	defer write.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 5)
		n, rerr := read.Read(buf)
		require.NoError(t, rerr)
		require.Equal(t, "hello", string(buf[:n]))
	}()

	extra, werr := write.Write([]byte("hello"))
	require.NoError(t, werr)
	require.Equal(t, 5, extra)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fifo read")
	}
}

func TestFifoOpen_SecondReaderFailsAlreadyInUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.fifo")

	read1, write1, err := FifoOpen(path, 0o600, true)
	require.NoError(t, err)
	defer read1.Close()
	defer write1.Close()

	_, _, err = FifoOpen(path, 0o600, true)
	require.Error(t, err)
	require.Equal(t, daemonkit.AlreadyInUse, daemonkit.KindOf(err))

	var derr *daemonkit.Error
	require.True(t, errors.As(err, &derr))
}
