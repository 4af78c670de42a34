// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartedByInit_FalseUnderGoTest(t *testing.T) {
	require.False(t, StartedByInit())
}

func TestStartedByInetd_FalseWithRegularStdin(t *testing.T) {
	require.False(t, StartedByInetd())
}

func TestStartedBySystemd_FollowsNotifySocketEnv(t *testing.T) {
	old, had := os.LookupEnv("NOTIFY_SOCKET")
	defer func() {
		if had {
			os.Setenv("NOTIFY_SOCKET", old)
		} else {
			os.Unsetenv("NOTIFY_SOCKET")
		}
	}()

	os.Unsetenv("NOTIFY_SOCKET")
	require.False(t, StartedBySystemd())

	os.Setenv("NOTIFY_SOCKET", "/run/systemd/notify")
	require.True(t, StartedBySystemd())
}
