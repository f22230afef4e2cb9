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

// statCommand implements the Stat syscall's CLI-facing counterpart (spec
// §4.2 Stat: "dump process table"), boot-then-dump since this tool has no
// separate long-running daemon to attach to.
type statCommand struct {
	cfg configFlag
}

func (*statCommand) Name() string     { return "stat" }
func (*statCommand) Synopsis() string { return "print the process table as JSON" }
func (*statCommand) Usage() string    { return "stat [-config path]\n" }

func (c *statCommand) SetFlags(f *flag.FlagSet) { c.cfg.register(f) }

func (c *statCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	booted, _, err := c.cfg.boot()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer booted.Console.Close()

	data, err := json.MarshalIndent(kstate.Dump(booted.Kernel, time.Now().UnixNano()), "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(string(data))
	return subcommands.ExitSuccess
}
