// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sysinit-go/daemonkit/daemon"
)

func newStopCmd() *cobra.Command {
	var sigName string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Signal the named daemon to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireName(); err != nil {
				return err
			}
			if err := daemon.Stop(flagPidDir, flagName, sigName); err != nil {
				return err
			}
			fmt.Printf("%s: sent %s\n", flagName, effectiveSignal(sigName))
			return nil
		},
	}

	cmd.Flags().StringVar(&sigName, "signal", "", "signal to send (default SIGTERM)")
	return cmd
}

func effectiveSignal(sigName string) string {
	if sigName == "" {
		return "SIGTERM"
	}
	return sigName
}
