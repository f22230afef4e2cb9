package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/vesper-os/vesperkernel/pkg/kstate"
)

type bootCommand struct {
	cfg configFlag
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "boot a kernel instance and print its initial state" }
func (*bootCommand) Usage() string {
	return "boot [-config path] - boot a kernel and dump the process table\n"
}

func (c *bootCommand) SetFlags(f *flag.FlagSet) { c.cfg.register(f) }

func (c *bootCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	booted, _, err := c.cfg.boot()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer booted.Console.Close()

	snap := kstate.Dump(booted.Kernel, time.Now().UnixNano())
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(string(data))
	return subcommands.ExitSuccess
}
