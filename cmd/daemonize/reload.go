// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sysinit-go/daemonkit/daemon"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the named daemon to reload its configuration (sends SIGHUP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireName(); err != nil {
				return err
			}
			if err := daemon.Stop(flagPidDir, flagName, "SIGHUP"); err != nil {
				return err
			}
			fmt.Printf("%s: sent SIGHUP\n", flagName)
			return nil
		},
	}
}
