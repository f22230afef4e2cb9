package apprunner

import (
	"runtime"
	"time"

	"github.com/vesper-os/vesperkernel/pkg/kcall"
	"github.com/vesper-os/vesperkernel/pkg/proc"
)

// Syscalls is the userland-side ABI a spawned program's goroutine calls
// through instead of `int 0x80`: one per process, holding that process's
// pid and its own copy of the register file lib/src/syscall.rs's sys_*
// wrappers populate and read. Grounded function-for-function on that file.
type Syscalls struct {
	rt  *Runtime
	pid proc.ProcessId
	ctx proc.ProcessContext
}

// Pid returns this process's own id without trapping (GetPid is cheap
// enough that going through Dispatch would only add overhead, not fidelity
// — it never blocks or mutates a register the caller needs back).
func (s *Syscalls) Pid() proc.ProcessId {
	return s.rt.kernel.CurrentPid()
}

// trap is the common path for every syscall that (a) is correctly
// expressed as "set registers, dispatch, read back rax" and (b) does not
// need its goroutine to terminate afterward (Fork, Kill and Exit are
// handled separately below, for exactly that reason).
func (s *Syscalls) trap(call kcall.Syscall, a0, a1, a2 uint64) uint64 {
	s.ctx.SetSyscallArgs(uint64(call), a0, a1, a2)
	s.rt.dispatcher.Dispatch(&s.ctx)
	s.rt.settle(s)
	return s.ctx.Rax()
}

// Brk implements the Brk syscall; newEnd nil is a query (spec §4.2/§4.3).
func (s *Syscalls) Brk(newEnd *uint64) uint64 {
	var arg uint64
	if newEnd != nil {
		arg = *newEnd
	}
	return s.trap(kcall.Brk, arg, 0, 0)
}

// NewSem, RemoveSem, SignalSem, WaitSem demultiplex onto the Sem syscall
// the same way sys_sem does in the original (op 0/1/2/3).
func (s *Syscalls) NewSem(key uint32, init int64) bool {
	return s.trap(kcall.Sem, 0, uint64(key), uint64(init)) == 0
}

func (s *Syscalls) RemoveSem(key uint32) bool {
	return s.trap(kcall.Sem, 1, uint64(key), 0) == 0
}

func (s *Syscalls) SignalSem(key uint32) {
	s.trap(kcall.Sem, 2, uint64(key), 0)
}

// WaitSem blocks (parked in settle, inside trap) until the semaphore has a
// token to hand out, returning 1 if key does not exist and 0 otherwise.
func (s *Syscalls) WaitSem(key uint32) uint64 {
	return s.trap(kcall.Sem, 3, uint64(key), 0)
}

// Write stages p into the dispatcher's user heap and traps with the token
// standing in for a userland pointer (see pkg/kcall's userHeap doc comment).
func (s *Syscalls) Write(fd int, p []byte) int64 {
	token := s.rt.dispatcher.Stage(p)
	return int64(s.trap(kcall.Write, uint64(fd), token, uint64(len(p))))
}

// Read stages an empty buffer of len(p), traps, and copies back whatever
// the kernel wrote into that token's block.
func (s *Syscalls) Read(fd int, p []byte) int64 {
	token := s.rt.dispatcher.Stage(make([]byte, len(p)))
	n := int64(s.trap(kcall.Read, uint64(fd), token, uint64(len(p))))
	if n > 0 {
		if data, ok := s.rt.dispatcher.Fetch(token, uint64(n)); ok {
			copy(p, data)
		}
	}
	return n
}

// Spawn starts a named application and returns its pid, or 0 if name is
// not a loaded app (spec §4.2 Spawn).
func (s *Syscalls) Spawn(name string) proc.ProcessId {
	token := s.rt.dispatcher.Stage([]byte(name))
	return proc.ProcessId(s.trap(kcall.Spawn, token, uint64(len(name)), 0))
}

// WaitPid blocks until pid exits (or returns immediately if it already
// has), yielding its exit code.
func (s *Syscalls) WaitPid(pid proc.ProcessId) int64 {
	return int64(s.trap(kcall.WaitPid, uint64(pid), 0, 0))
}

// Kill ends another process, or this one. Killing self never returns: like
// Exit, it terminates this goroutine once the scheduler has moved on.
func (s *Syscalls) Kill(pid proc.ProcessId) {
	self := pid == s.rt.kernel.CurrentPid()
	s.ctx.SetSyscallArgs(uint64(kcall.Kill), uint64(pid), 0, 0)
	s.rt.dispatcher.Dispatch(&s.ctx)
	if self {
		s.rt.nudge()
		runtime.Goexit()
	}
	s.rt.settle(s)
}

// Time returns the kernel clock (spec §4.2 Time).
func (s *Syscalls) Time() time.Time {
	nanos := int64(s.trap(kcall.Time, 0, 0, 0))
	return time.Unix(0, nanos)
}

// Stat and ListApp ask the kernel to log the process table / app list
// (spec §4.2); pkg/kstate is the structured alternative for a caller that
// wants the data back instead of log lines.
func (s *Syscalls) Stat() {
	s.trap(kcall.Stat, 0, 0, 0)
}

func (s *Syscalls) ListApp() {
	s.trap(kcall.ListApp, 0, 0, 0)
}

// Allocate and Deallocate hand out and release scratch heap tokens
// directly, for programs that need a staging buffer without an fd.
func (s *Syscalls) Allocate(size, align uint64) uint64 {
	return s.trap(kcall.Allocate, size, align, 0)
}

func (s *Syscalls) Deallocate(token uint64) {
	s.trap(kcall.Deallocate, token, 0, 0)
}

// Fork implements spec §4.4's fork/fork demo contract the way
// app/fork/src/main.rs exercises it, adapted to Go: since a goroutine
// cannot be duplicated mid-stack the way a real process's memory and
// register file are, the caller supplies the child's remaining work as an
// explicit closure instead of relying on both "branches" falling out of one
// shared function body. Fork returns the new child's pid to the parent
// goroutine, which continues executing the code after the Fork call
// exactly like the original's `else` arm; childBody runs in a freshly
// launched goroutine standing in for the `if pid == 0` arm, seeded with the
// zeroed-return context pkg/proc already computed for it.
func (s *Syscalls) Fork(childBody func(child *Syscalls)) proc.ProcessId {
	childPid, err := s.rt.kernel.Fork(&s.ctx)
	if err != nil {
		return 0
	}
	s.rt.Launch(childPid, childBody)
	s.rt.settle(s)
	return childPid
}

// Exit implements spec §4.5/§4.1: never returns. The exiting process's
// goroutine ends here for good; Launch's wrapper calls this automatically
// if a process's body function returns without calling it explicitly.
func (s *Syscalls) Exit(code int64) {
	s.rt.kernel.Exit(code, &s.ctx)
	s.rt.nudge()
	runtime.Goexit()
}
