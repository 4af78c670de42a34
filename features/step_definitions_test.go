// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package features

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/sysinit-go/daemonkit"
	"github.com/sysinit-go/daemonkit/daemon"
	"github.com/sysinit-go/daemonkit/supervisor"
)

type testContext struct {
	pidDir string
	name   string

	ctx     *daemon.Context
	secondC *daemon.Context
	lastErr error

	handle *supervisor.Handle
}

var testCtx = &testContext{}

func aDaemonNamed(name string) error {
	testCtx.pidDir = mustTempDir()
	testCtx.ctx = daemon.New(daemon.WithPidDir(testCtx.pidDir))
	testCtx.name = name
	return nil
}

func itAcquiresItsPidfile() error {
	return testCtx.ctx.Pidfile(testCtx.name)
}

func thePidfileShouldContainTheDaemonSOwnPid() error {
	path := filepath.Join(testCtx.pidDir, testCtx.name+".pid")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return err
	}
	if pid != os.Getpid() {
		return fmt.Errorf("pidfile contains %d, want %d", pid, os.Getpid())
	}
	return nil
}

func aDaemonNamedHasAlreadyAcquiredItsPidfile(name string) error {
	if err := aDaemonNamed(name); err != nil {
		return err
	}
	return testCtx.ctx.Pidfile(testCtx.name)
}

func anotherDaemonNamedTriesToAcquireItsPidfile(name string) error {
	testCtx.secondC = daemon.New(daemon.WithPidDir(testCtx.pidDir))
	testCtx.lastErr = testCtx.secondC.Pidfile(name)
	return nil
}

func theSecondAcquisitionShouldFailAsAlreadyInUse() error {
	if testCtx.lastErr == nil {
		return fmt.Errorf("expected the second acquisition to fail, it succeeded")
	}
	if kind := daemonkit.KindOf(testCtx.lastErr); kind != daemonkit.AlreadyInUse {
		return fmt.Errorf("expected an already-in-use failure, got %s: %v", kind, testCtx.lastErr)
	}
	return nil
}

func aSupervisedProcessRunning(command string) error {
	h, err := supervisor.Start(context.Background(), supervisor.Options{
		Name:    command,
		Command: command,
	})
	if err != nil {
		return err
	}
	testCtx.handle = h
	return nil
}

func aSupervisedProcessRunningWithArgs(command, args string) error {
	h, err := supervisor.Start(context.Background(), supervisor.Options{
		Name:    command,
		Command: command,
		Args:    strings.Fields(args),
	})
	if err != nil {
		return err
	}
	testCtx.handle = h
	return nil
}

func theProcessExits() error {
	select {
	case <-testCtx.handle.Wait():
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("process did not exit in time")
	}
}

func itsStatusShouldBeExitedWithExitCode(code int) error {
	status := testCtx.handle.Status()
	if status.State != supervisor.StateExited {
		return fmt.Errorf("expected state exited, got %s", status.State)
	}
	if status.ExitResult == nil || status.ExitResult.ExitCode != code {
		return fmt.Errorf("expected exit code %d, got %+v", code, status.ExitResult)
	}
	return nil
}

func itIsStoppedWithSignal(sigName string) error {
	sig := syscall.SIGTERM
	if sigName == "SIGKILL" {
		sig = syscall.SIGKILL
	}
	return testCtx.handle.Stop(context.Background(), sig, time.Second)
}

func theProcessShouldNoLongerBeRunning() error {
	if testCtx.handle.IsRunning() {
		return fmt.Errorf("expected process to have stopped")
	}
	return nil
}

func mustTempDir() string {
	dir, err := os.MkdirTemp("", "daemonkit-features-")
	if err != nil {
		panic(err)
	}
	return dir
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	ctx.Step(`^a daemon named "([^"]*)"$`, aDaemonNamed)
	ctx.Step(`^it acquires its pidfile$`, itAcquiresItsPidfile)
	ctx.Step(`^the pidfile should contain the daemon's own pid$`, thePidfileShouldContainTheDaemonSOwnPid)

	ctx.Step(`^a daemon named "([^"]*)" has already acquired its pidfile$`, aDaemonNamedHasAlreadyAcquiredItsPidfile)
	ctx.Step(`^another daemon named "([^"]*)" tries to acquire its pidfile$`, anotherDaemonNamedTriesToAcquireItsPidfile)
	ctx.Step(`^the second acquisition should fail as already in use$`, theSecondAcquisitionShouldFailAsAlreadyInUse)

	ctx.Step(`^a supervised process running "([^"]*)"$`, aSupervisedProcessRunning)
	ctx.Step(`^a supervised process running "([^"]*)" with args "([^"]*)"$`, aSupervisedProcessRunningWithArgs)
	ctx.Step(`^the process exits$`, theProcessExits)
	ctx.Step(`^its status should be exited with exit code (\d+)$`, itsStatusShouldBeExitedWithExitCode)
	ctx.Step(`^it is stopped with signal "([^"]*)"$`, itIsStoppedWithSignal)
	ctx.Step(`^the process should no longer be running$`, theProcessShouldNoLongerBeRunning)

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if testCtx.ctx != nil {
			_ = testCtx.ctx.Close()
		}
		if testCtx.secondC != nil {
			_ = testCtx.secondC.Close()
		}
		if testCtx.pidDir != "" {
			_ = os.RemoveAll(testCtx.pidDir)
		}
		testCtx = &testContext{}
		return ctx, nil
	})
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"."},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
