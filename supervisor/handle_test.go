// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStart_TracksNormalExit(t *testing.T) {
	ctx := context.Background()
	h, err := Start(ctx, Options{Name: "ok", Command: "true"})
	require.NoError(t, err)

	select {
	case <-h.Wait():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit in time")
	}

	status := h.Status()
	require.Equal(t, StateExited, status.State)
	require.NotNil(t, status.ExitResult)
	require.Equal(t, 0, status.ExitResult.ExitCode)
	require.False(t, h.IsRunning())
}

func TestStart_TracksNonZeroExit(t *testing.T) {
	ctx := context.Background()
	h, err := Start(ctx, Options{Name: "fail", Command: "false"})
	require.NoError(t, err)

	<-h.Wait()

	status := h.Status()
	require.Equal(t, StateExited, status.State)
	require.Equal(t, 1, status.ExitResult.ExitCode)
}

func TestSignal_ReachesRunningProcess(t *testing.T) {
	ctx := context.Background()
	h, err := Start(ctx, Options{Name: "sleep", Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	require.True(t, h.IsRunning())

	require.NoError(t, h.Signal(syscall.SIGTERM))

	select {
	case <-h.Wait():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit after SIGTERM")
	}
	require.False(t, h.IsRunning())
}

func TestStop_FallsBackToSigkillAfterGrace(t *testing.T) {
	ctx := context.Background()
	// sleep on its own exits on SIGTERM, so run it under a shell that
	// ignores TERM (sleep inherits the ignored disposition) to force the
	// grace-period/SIGKILL fallback path.
	h, err := Start(ctx, Options{
		Name:    "stubborn",
		Command: "sh",
		Args:    []string{"-c", "trap '' TERM; sleep 30"},
	})
	require.NoError(t, err)

	err = h.Stop(ctx, syscall.SIGTERM, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, h.IsRunning())
}
