package kcall

import (
	"github.com/vesper-os/vesperkernel/pkg/klog"
	"github.com/vesper-os/vesperkernel/pkg/proc"
)

// Dispatcher decodes and services syscalls against one Kernel. It owns the
// Allocate/Deallocate userland heap, since that bookkeeping has no natural
// home inside pkg/proc (spec §1: the process manager, not a userland
// allocator, is this module's subject).
type Dispatcher struct {
	kernel *proc.Kernel
	heap   *userHeap
}

// NewDispatcher builds a dispatcher over an already-booted Kernel.
func NewDispatcher(k *proc.Kernel) *Dispatcher {
	return &Dispatcher{kernel: k, heap: newUserHeap()}
}

// Stage places data into the dispatcher's user heap and returns the token a
// userland caller (pkg/apprunner) should pass as the "pointer" argument to
// Read/Write/Spawn — see userHeap's doc comment for why a token stands in
// for a real pointer in this simulation.
func (d *Dispatcher) Stage(data []byte) uint64 {
	return d.heap.stage(data)
}

// Fetch retrieves up to length bytes previously written into a token's
// block by the kernel (the Read syscall's delivery mechanism) — the
// userland-side counterpart to Stage.
func (d *Dispatcher) Fetch(token, length uint64) ([]byte, bool) {
	return d.heap.read(token, length)
}

// Dispatch services one trapped syscall (spec §4.2): decode, validate,
// invoke, write the result back into ctx's return register. Calls that can
// block (WaitPid on a live child, Sem wait on an empty semaphore) switch
// away inside Dispatch and return at once with ctx holding the next
// process's context; the blocked caller's result is written into its saved
// context when it is woken.
func (d *Dispatcher) Dispatch(ctx *proc.ProcessContext) {
	num, arg0, arg1, arg2 := ctx.Rax(), ctx.Regs.RDI, ctx.Regs.RSI, ctx.Regs.RDX
	args := NewSyscallArgs(FromRegister(num), arg0, arg1, arg2)

	if klog.IsLogging(klog.Debug) {
		klog.Debugf("%s", args)
	}

	switch args.Call {
	case Brk:
		ctx.SetRax(d.sysBrk(args))
	case Sem:
		d.sysSem(args, ctx)
	case Fork:
		d.sysFork(ctx)
	case Read:
		ctx.SetRax(d.sysRead(args))
	case Write:
		ctx.SetRax(d.sysWrite(args))
	case GetPid:
		ctx.SetRax(uint64(d.kernel.CurrentPid()))
	case Spawn:
		ctx.SetRax(d.sysSpawn(args))
	case Exit:
		d.kernel.Exit(int64(args.Arg0), ctx)
	case WaitPid:
		d.sysWaitPid(args, ctx)
	case Kill:
		d.sysKill(args, ctx)
	case Time:
		ctx.SetRax(uint64(sysClock()))
	case Stat:
		d.sysStat()
	case ListApp:
		d.sysListApp()
	case Allocate:
		ctx.SetRax(d.heap.allocate(args.Arg0, args.Arg1))
	case Deallocate:
		d.heap.deallocate(args.Arg0)
	case None:
		// Unknown call number: silently ignored, returns 0 (spec §7).
		ctx.SetRax(0)
	}
}
