package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

// listAppCommand implements the ListApp syscall's CLI-facing counterpart
// (spec §4.2 ListApp: "enumerate loaded application images").
type listAppCommand struct {
	cfg configFlag
}

func (*listAppCommand) Name() string     { return "listapp" }
func (*listAppCommand) Synopsis() string { return "list loaded application images" }
func (*listAppCommand) Usage() string    { return "listapp [-config path]\n" }

func (c *listAppCommand) SetFlags(f *flag.FlagSet) { c.cfg.register(f) }

func (c *listAppCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	booted, _, err := c.cfg.boot()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer booted.Console.Close()

	for _, app := range booted.Kernel.ListApp() {
		fmt.Printf("%-16s %6d bytes  argv=%v cwd=%s env=%v\n",
			app.Name, app.CodeSize, app.Args, app.Cwd, app.Env)
	}
	return subcommands.ExitSuccess
}
