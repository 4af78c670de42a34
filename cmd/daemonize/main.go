// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Command daemonize runs an arbitrary command as a supervised,
// properly-daemonised process: it forks into the background, acquires a
// pidfile, and streams the child's output through fifos, then offers
// status/stop/reload operations against that pidfile from separate
// invocations. It does not change the user or group it runs as.
package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	flagName          string
	flagPidDir        string
	flagInetd         bool
	flagPreventCore   bool
	flagNotifySystemd bool
	flagLogLevel      string
)

func newLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "daemonize",
		Level: hclog.LevelFromString(flagLogLevel),
	})
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "daemonize",
		Short:         "Run and supervise a command as a POSIX daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagName, "name", "", "daemon name, used to locate its pidfile (required)")
	root.PersistentFlags().StringVar(&flagPidDir, "pid-dir", "", "directory for the pidfile (default: /var/run as root, /tmp otherwise)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newReloadCmd())

	return root
}

func requireName() error {
	if flagName == "" {
		return fmt.Errorf("--name is required")
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "daemonize:", err)
		os.Exit(1)
	}
}
