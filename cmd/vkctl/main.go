// Command vkctl is the operator-facing entry point for a single booted
// kernel instance: load a config, spawn and drive its registered
// applications, and inspect the resulting process table. It plays the role
// runsc/cli/main.go plays for gvisor, scaled down to one process with no
// separate boot/gofer/sandbox split (spec §1 scopes this module to the
// process manager itself, not a container runtime's multi-process
// architecture).
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&bootCommand{}, "")
	subcommands.Register(&spawnCommand{}, "")
	subcommands.Register(&statCommand{}, "")
	subcommands.Register(&listAppCommand{}, "")
	subcommands.Register(&waitCommand{}, "")
	subcommands.Register(&demoCommand{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
