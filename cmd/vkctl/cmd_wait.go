package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"

	"github.com/vesper-os/vesperkernel/pkg/apprunner"
	"github.com/vesper-os/vesperkernel/pkg/kcall"
	"github.com/vesper-os/vesperkernel/pkg/proc"
)

// waitCommand spawns an app and polls the process table for it to reach
// StatusDead, the way runsc/sandbox/sandbox.go's waitForStopped polls
// s.IsRunning() via backoff instead of synchronizing directly with the
// process it's watching — useful when the waiter is a separate observer
// from whatever is actually driving the process (here, a concurrently
// running apprunner.Runtime).
type waitCommand struct {
	cfg     configFlag
	name    string
	timeout time.Duration
}

func (*waitCommand) Name() string     { return "wait" }
func (*waitCommand) Synopsis() string { return "spawn an app and poll until it exits" }
func (*waitCommand) Usage() string    { return "wait [-config path] -app name [-timeout dur]\n" }

func (c *waitCommand) SetFlags(f *flag.FlagSet) {
	c.cfg.register(f)
	f.StringVar(&c.name, "app", "", "name of a loaded app to spawn")
	f.DurationVar(&c.timeout, "timeout", 5*time.Second, "how long to poll before giving up")
}

func (c *waitCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		fmt.Fprintln(os.Stderr, "wait: -app is required")
		return subcommands.ExitUsageError
	}

	booted, _, err := c.cfg.boot()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer booted.Console.Close()

	pid, err := booted.Kernel.Spawn(c.name, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	rt := apprunner.New(booted.Kernel, kcall.NewDispatcher(booted.Kernel))
	rt.Launch(pid, greeterProgram)
	rt.Start()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	b := backoff.WithContext(backoff.NewConstantBackOff(10*time.Millisecond), ctx)

	op := func() error {
		for _, p := range booted.Kernel.Stat() {
			if p.ID() == pid && p.Status() == proc.StatusDead {
				return nil
			}
		}
		return fmt.Errorf("pid %d is still running", pid)
	}
	if err := backoff.Retry(op, b); err != nil {
		fmt.Fprintf(os.Stderr, "wait: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("pid %d exited\n", pid)
	return subcommands.ExitSuccess
}
