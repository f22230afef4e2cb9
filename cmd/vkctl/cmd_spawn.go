package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/vesper-os/vesperkernel/pkg/apprunner"
	"github.com/vesper-os/vesperkernel/pkg/kcall"
)

// spawnCommand implements the Spawn syscall's CLI-facing counterpart (spec
// §4.2 Spawn: "start a named application"), driving the resulting process
// to completion via pkg/apprunner before returning.
type spawnCommand struct {
	cfg  configFlag
	name string
}

func (*spawnCommand) Name() string     { return "spawn" }
func (*spawnCommand) Synopsis() string { return "spawn a named app and run it to completion" }
func (*spawnCommand) Usage() string    { return "spawn [-config path] -app name\n" }

func (c *spawnCommand) SetFlags(f *flag.FlagSet) {
	c.cfg.register(f)
	f.StringVar(&c.name, "app", "", "name of a loaded app to spawn")
}

func (c *spawnCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		fmt.Fprintln(os.Stderr, "spawn: -app is required")
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
	rt.Wait()

	fmt.Printf("spawned and ran pid %d (%s)\n", pid, c.name)
	return subcommands.ExitSuccess
}
