package kcall

import (
	"time"

	"github.com/vesper-os/vesperkernel/pkg/klog"
	"github.com/vesper-os/vesperkernel/pkg/proc"
)

// sysClock returns nanoseconds since the Unix epoch (spec §4.2 Time).
// Grounded on `sys_clock` in the original's service.rs, backed by the
// stdlib clock rather than a kernel-internal RTC driver the spec declares
// out of scope (§1: "external collaborators" list every hardware source
// this kernel consumes, not reimplements).
func sysClock() int64 {
	return time.Now().UnixNano()
}

func (d *Dispatcher) sysBrk(args SyscallArgs) uint64 {
	var newEnd *uint64
	if args.Arg0 != 0 {
		v := args.Arg0
		newEnd = &v
	}
	return d.kernel.Brk(newEnd)
}

// sysSem demultiplexes the four semaphore sub-operations onto one syscall
// number (spec §4.2 Sem: "op∈{0 new,1 del,2 signal,3 wait}"). Grounded on
// `sys_sem` in service.rs.
func (d *Dispatcher) sysSem(args SyscallArgs, ctx *proc.ProcessContext) {
	key := uint32(args.Arg1)
	switch args.Arg0 {
	case 0:
		ctx.SetRax(boolToCode(d.kernel.NewSem(key, int64(args.Arg2))))
	case 1:
		ctx.SetRax(boolToCode(d.kernel.RemoveSem(key)))
	case 2:
		d.kernel.SemSignal(key)
		ctx.SetRax(0)
	case 3:
		// Clear the return register (it still holds the call number)
		// before SemWait saves ctx: SemOk then reports 0, and SemBlock's
		// saved context is overwritten by wake_up once the caller is
		// rescheduled.
		ctx.SetRax(0)
		res := d.kernel.SemWait(key, ctx)
		if res.Kind == proc.SemNotExist {
			ctx.SetRax(1)
		}
	default:
		ctx.SetRax(^uint64(0))
	}
}

// boolToCode maps New/Remove's boolean result onto the 0-ok/1-err
// convention the rest of the Sem sub-ops use (spec §4.2: "0 ok / 1 err").
func boolToCode(ok bool) uint64 {
	if ok {
		return 0
	}
	return 1
}

func (d *Dispatcher) sysFork(ctx *proc.ProcessContext) {
	if _, err := d.kernel.Fork(ctx); err != nil {
		klog.Warningf("fork failed: %v", err)
		ctx.SetRax(^uint64(0))
	}
}

func (d *Dispatcher) sysRead(args SyscallArgs) uint64 {
	buf := make([]byte, args.Arg2)
	n := d.kernel.Read(int(args.Arg0), buf)
	end := int(n)
	if end < 0 {
		end = 0
	}
	d.heap.writeBack(args.Arg1, buf[:end])
	return uint64(n)
}

func (d *Dispatcher) sysWrite(args SyscallArgs) uint64 {
	buf, ok := d.heap.read(args.Arg1, args.Arg2)
	if !ok {
		return ^uint64(0)
	}
	n := d.kernel.Write(int(args.Arg0), buf)
	return uint64(n)
}

func (d *Dispatcher) sysSpawn(args SyscallArgs) uint64 {
	name, ok := d.heap.read(args.Arg0, args.Arg1)
	if !ok {
		return 0
	}
	pid, err := d.kernel.Spawn(string(name), nil)
	if err != nil {
		klog.Warningf("spawn_process: failed to spawn process: %s", name)
		return 0
	}
	return uint64(pid)
}

func (d *Dispatcher) sysWaitPid(args SyscallArgs, ctx *proc.ProcessContext) {
	pid := proc.ProcessId(args.Arg0)
	if err := d.kernel.WaitPid(pid, ctx); err != nil {
		klog.Warningf("wait_pid: %v", err)
	}
}

func (d *Dispatcher) sysKill(args SyscallArgs, ctx *proc.ProcessContext) {
	pid := proc.ProcessId(args.Arg0)
	if err := d.kernel.Kill(pid, ctx); err != nil {
		klog.Warningf("sys_kill: %v", err)
	}
}

func (d *Dispatcher) sysStat() {
	for _, p := range d.kernel.Stat() {
		klog.Infof("#%-3d %-12s %-8s ticks=%d", p.ID(), p.Name(), p.Status(), p.Ticks())
	}
}

func (d *Dispatcher) sysListApp() {
	for _, app := range d.kernel.ListApp() {
		klog.Infof("app: %s (%d bytes)", app.Name, app.CodeSize)
	}
}

