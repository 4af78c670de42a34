// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sysinit-go/daemonkit/daemon"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the named daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireName(); err != nil {
				return err
			}

			running, err := daemon.IsRunning(flagPidDir, flagName)
			if err != nil {
				return err
			}
			if !running {
				fmt.Printf("%s: not running\n", flagName)
				return nil
			}

			pid, err := daemon.GetPid(flagPidDir, flagName)
			if err != nil {
				return err
			}
			fmt.Printf("%s: running, pid %d\n", flagName, pid)
			return nil
		},
	}
}
