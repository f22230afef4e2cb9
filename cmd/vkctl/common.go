package main

import (
	"flag"
	"fmt"

	"github.com/vesper-os/vesperkernel/pkg/apprunner"
	"github.com/vesper-os/vesperkernel/pkg/bootinfo"
)

// configFlag is the -config flag every subcommand below registers,
// mirroring runsc's per-subcommand flag.FlagSet registration pattern
// (each subcommands.Command owns its own SetFlags).
type configFlag struct {
	path string
}

func (c *configFlag) register(f *flag.FlagSet) {
	f.StringVar(&c.path, "config", "", "path to a TOML kernel config file (defaults baked in if omitted)")
}

func (c *configFlag) boot() (*bootinfo.Booted, bootinfo.Config, error) {
	cfg := bootinfo.DefaultConfig()
	if c.path != "" {
		loaded, err := bootinfo.LoadConfig(c.path)
		if err != nil {
			return nil, cfg, fmt.Errorf("loading config %q: %w", c.path, err)
		}
		cfg = loaded
	}
	booted, err := bootinfo.Boot(cfg, cfg.Apps)
	if err != nil {
		return nil, cfg, fmt.Errorf("boot: %w", err)
	}
	return booted, cfg, nil
}

// greeterProgram is the builtin application body every spawn/wait/demo
// subcommand runs absent a real loaded ELF image (spec §1 leaves the
// loader itself out of scope): it announces its own pid over fd 1 and
// returns, letting Launch's implicit Exit(0) end it.
func greeterProgram(s *apprunner.Syscalls) {
	msg := fmt.Sprintf("pid %d: hello from inside the kernel\n", s.Pid())
	s.Write(1, []byte(msg))
}

