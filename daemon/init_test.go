// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/require"
)

// TestMain lets this package's test binary double as a helper process:
// a subprocess spawned with DAEMONKIT_TEST_HELPER set runs the named
// helper instead of the test suite. This is the only way to exercise
// behavior that depends on actually being a distinct OS process (a
// fresh session/process-group membership, a separately-held pidfile
// lock) rather than whatever the test runner's own process happens to
// already be.
func TestMain(m *testing.M) {
	switch os.Getenv("DAEMONKIT_TEST_HELPER") {
	case "":
		os.Exit(m.Run())
	case "reexec-setsid":
		runReexecSetsidHelper()
	case "pidfile-holder":
		runPidfileHolderHelper()
	default:
		fmt.Fprintln(os.Stderr, "daemon test helper: unknown DAEMONKIT_TEST_HELPER value")
		os.Exit(2)
	}
}

// runReexecSetsidHelper plays the part of the stageSessionLeader stage
// of Context.Init: call unix.Setsid() exactly as reexec's child would.
// It's spawned as a plain child (no SysProcAttr.Setsid requested),
// matching what reexec now does, so this call must succeed.
func runReexecSetsidHelper() {
	if _, err := unix.Setsid(); err != nil {
		fmt.Fprintf(os.Stderr, "setsid: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// TestReexecSequence_SessionLeaderStageCanSetsidExactlyOnce guards
// against reexec re-introducing Setsid in the child's exec attributes
// alongside the explicit unix.Setsid() call the stageSessionLeader case
// makes: setsid(2) fails with EPERM if the caller is already a
// process-group leader, which it would be had Setsid already been
// requested at exec time, and Context.Init would then fail on every
// ordinary (non-inetd, non-systemd) daemonisation attempt.
func TestReexecSequence_SessionLeaderStageCanSetsidExactlyOnce(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	cmd := exec.Command(self)
	cmd.Env = append(os.Environ(), "DAEMONKIT_TEST_HELPER=reexec-setsid")
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "helper process failed: %s", out)
}

func TestExitDelayFromEnv_Unset(t *testing.T) {
	os.Unsetenv("DAEMON_INIT_EXIT_DELAY_MSEC")
	_, ok := exitDelayFromEnv()
	require.False(t, ok)
}

func TestExitDelayFromEnv_ParsesMilliseconds(t *testing.T) {
	os.Setenv("DAEMON_INIT_EXIT_DELAY_MSEC", "1500")
	defer os.Unsetenv("DAEMON_INIT_EXIT_DELAY_MSEC")

	d, ok := exitDelayFromEnv()
	require.True(t, ok)
	require.Equal(t, 1500*time.Millisecond, d)
}

func TestExitDelayFromEnv_InvalidIsIgnored(t *testing.T) {
	os.Setenv("DAEMON_INIT_EXIT_DELAY_MSEC", "not-a-number")
	defer os.Unsetenv("DAEMON_INIT_EXIT_DELAY_MSEC")

	_, ok := exitDelayFromEnv()
	require.False(t, ok)
}

func TestPreventCore_Succeeds(t *testing.T) {
	require.NoError(t, PreventCore())
}
