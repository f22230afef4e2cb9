package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/vesper-os/vesperkernel/pkg/apprunner"
	"github.com/vesper-os/vesperkernel/pkg/kcall"
	"github.com/vesper-os/vesperkernel/pkg/proc"
)

// demoCommand boots a kernel and drives the fork/wait_pid scenario
// app/fork/src/main.rs exercises, alongside one plain greeter process,
// both launched concurrently via errgroup the way a real
// multi-tenant boot would bring up several independent workloads at once.
type demoCommand struct {
	cfg configFlag
}

func (*demoCommand) Name() string     { return "demo" }
func (*demoCommand) Synopsis() string { return "run the fork/wait_pid demo scenario" }
func (*demoCommand) Usage() string    { return "demo [-config path]\n" }

func (c *demoCommand) SetFlags(f *flag.FlagSet) { c.cfg.register(f) }

func (c *demoCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	booted, cfg, err := c.cfg.boot()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer booted.Console.Close()

	if len(cfg.Apps) == 0 {
		fmt.Fprintln(os.Stderr, "demo: config has no apps to spawn")
		return subcommands.ExitFailure
	}
	appName := cfg.Apps[0].Name

	rt := apprunner.New(booted.Kernel, kcall.NewDispatcher(booted.Kernel))

	forkPid, err := booted.Kernel.Spawn(appName, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	siblingPid, err := booted.Kernel.Spawn(appName, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	var g errgroup.Group
	g.Go(func() error {
		return runForkScenario(rt, forkPid)
	})
	g.Go(func() error {
		rt.Launch(siblingPid, greeterProgram)
		return nil
	})

	rt.Start()
	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	rt.Wait()

	for _, p := range booted.Kernel.Stat() {
		fmt.Printf("#%-3d %-12s %-8s ticks=%d\n", p.ID(), p.Name(), p.Status(), p.Ticks())
	}
	return subcommands.ExitSuccess
}

// runForkScenario launches forkPid's goroutine with the body
// app/fork/src/main.rs exercises: fork, report the parent's local from the
// child and exit 64, wait for it in the parent, and report whether the exit
// code round-tripped.
func runForkScenario(rt *apprunner.Runtime, forkPid proc.ProcessId) error {
	result := make(chan error, 1)
	rt.Launch(forkPid, func(s *apprunner.Syscalls) {
		c := int64(32)
		childPid := s.Fork(func(child *apprunner.Syscalls) {
			msg := fmt.Sprintf("child pid %d: parent's c was %d, exiting 64\n", child.Pid(), c)
			child.Write(1, []byte(msg))
			child.Exit(64)
		})
		if childPid == 0 {
			result <- fmt.Errorf("fork failed for pid %d", s.Pid())
			return
		}
		code := s.WaitPid(childPid)
		s.Write(1, []byte(fmt.Sprintf("parent pid %d: child %d exited %d\n", s.Pid(), childPid, code)))
		if code != 64 {
			result <- fmt.Errorf("child %d exited %d, want 64", childPid, code)
			return
		}
		result <- nil
	})
	return <-result
}
