package bootinfo

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the kernel's boot-time configuration, translated from the
// teacher's CLI-flag-driven runsc/config.Config (registered in
// runsc/config/flags.go) into a single TOML file: this kernel boots a
// fixed scenario rather than a container runtime invoked per-command, so a
// file fits the lifecycle better than a flag set re-parsed on every call.
type Config struct {
	LogLevel string `toml:"log_level"`

	// Memory layout handed to every spawned process (pkg/proc.ManagerConfig).
	CodeBase     uint64 `toml:"code_base"`
	StackTop     uint64 `toml:"stack_top"`
	StackSize    uint64 `toml:"stack_size"`
	MaxHeapPages uint64 `toml:"max_heap_pages"`

	// Console wires fd 0/1/2 (pkg/console).
	Console ConsoleConfig `toml:"console"`

	// Apps names the application images the loader should have already
	// resolved by the time Boot runs; CodeSize comes from the loader in a
	// real boot, but a config-driven demo needs to state it up front.
	Apps []AppConfig `toml:"apps"`
}

// ConsoleConfig configures the console device (pkg/console).
type ConsoleConfig struct {
	BaudRate    int    `toml:"baud_rate"`
	FifoLogPath string `toml:"fifo_log_path"`
}

// AppConfig names one application the kernel should be able to spawn,
// plus the argv/env/cwd descriptor metadata a real loader would read off
// the image (spec §6); Boot turns each of these into an AppImage carrying
// a specs.Process before handing it to the process manager.
type AppConfig struct {
	Name     string            `toml:"name"`
	CodeSize uint64            `toml:"code_size"`
	Args     []string          `toml:"args"`
	Env      map[string]string `toml:"env"`
	Cwd      string            `toml:"cwd"`
}

// DefaultConfig mirrors the defaults flags.go registers for the handful of
// settings this kernel actually needs (log level, sandbox-equivalent
// resource caps).
func DefaultConfig() Config {
	return Config{
		LogLevel:     "info",
		CodeBase:     0x40_0000,
		StackTop:     0x80_0000,
		StackSize:    64 * 1024,
		MaxHeapPages: 256,
		Console: ConsoleConfig{
			BaudRate: 115200,
		},
	}
}

// LoadConfig reads and decodes a TOML config file, starting from
// DefaultConfig so an omitted field keeps its default rather than zeroing
// out, the same layered-defaults behavior flags.go's RegisterFlags gives
// every flag.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("bootinfo: loading config %q: %w", path, err)
	}
	return cfg, nil
}
