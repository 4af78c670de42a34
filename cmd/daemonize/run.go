// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sysinit-go/daemonkit/daemon"
	"github.com/sysinit-go/daemonkit/supervisor"
)

func newRunCmd() *cobra.Command {
	var (
		stdoutFifo string
		stderrFifo string
		usePty     bool
	)

	cmd := &cobra.Command{
		Use:                "run -- command [args...]",
		Short:              "Daemonise and supervise command",
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireName(); err != nil {
				return err
			}

			logger := newLogger()
			ctx := daemon.New(
				daemon.WithPidDir(flagPidDir),
				daemon.WithInetd(flagInetd),
				daemon.WithPreventCore(flagPreventCore),
				daemon.WithSystemdNotify(flagNotifySystemd),
			)

			if err := ctx.Init(flagName); err != nil {
				return fmt.Errorf("daemonising: %w", err)
			}
			defer ctx.Close()

			handle, err := supervisor.Start(context.Background(), supervisor.Options{
				Name:       flagName,
				Command:    args[0],
				Args:       args[1:],
				Pty:        usePty,
				StdoutFifo: stdoutFifo,
				StderrFifo: stderrFifo,
				Logger:     logger,
			})
			if err != nil {
				return fmt.Errorf("starting %s: %w", args[0], err)
			}

			// Notify for SIGHUP here overrides Init's earlier
			// signal.Ignore(SIGHUP), which only needed to hold through
			// the fork/setsid dance.
			sigCh := make(chan os.Signal, 4)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

		waitLoop:
			for {
				select {
				case sig := <-sigCh:
					logger.Info("forwarding signal to child", "signal", sig)
					_ = handle.Signal(sig.(syscall.Signal))
					if sig == syscall.SIGHUP {
						continue waitLoop
					}
					<-handle.Wait()
					break waitLoop
				case <-handle.Wait():
					break waitLoop
				}
			}

			status := handle.Status()
			if status.ExitResult != nil && status.ExitResult.ExitCode != 0 {
				os.Exit(status.ExitResult.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stdoutFifo, "stdout-fifo", "", "fifo path to stream the child's stdout to")
	cmd.Flags().StringVar(&stderrFifo, "stderr-fifo", "", "fifo path to stream the child's stderr to")
	cmd.Flags().BoolVar(&usePty, "pty", false, "run the child attached to a pseudo-terminal")
	cmd.Flags().BoolVar(&flagInetd, "inetd", false, "this process was launched by inetd; keep inherited descriptors as-is")
	cmd.Flags().BoolVar(&flagPreventCore, "prevent-core", false, "disable core dumps")
	cmd.Flags().BoolVar(&flagNotifySystemd, "notify-systemd", false, "send sd_notify READY=1 once daemonised")

	return cmd
}
