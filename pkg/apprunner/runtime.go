// Package apprunner multiplexes one goroutine per simulated process onto
// pkg/proc.Kernel's single-CPU scheduling decisions. The kernel itself has
// no notion of a "thread" at all — spec §5 describes a single physical CPU
// running one process's instructions at a time, with a process switch ever
// the kernel saves one ProcessContext and loads another. A Go program
// cannot literally suspend and resume an arbitrary call stack the way a
// real context switch does, so apprunner gives every simulated process its
// own goroutine and uses a token-passing handshake to ensure that, at any
// instant, only the goroutine whose pid is Kernel.CurrentPid() is actually
// running application code — every other process goroutine is parked,
// exactly as it would be "not scheduled" on real hardware.
package apprunner

import (
	"sync"

	"github.com/vesper-os/vesperkernel/pkg/kcall"
	"github.com/vesper-os/vesperkernel/pkg/proc"
)

// Runtime owns the kernel, the dispatcher, and the wake channels the
// token-passing handshake uses to hand control from one process goroutine
// to the next.
type Runtime struct {
	kernel     *proc.Kernel
	dispatcher *kcall.Dispatcher

	mu   sync.Mutex
	wake map[proc.ProcessId]chan struct{}
	live sync.WaitGroup
}

// New builds a Runtime over an already-booted kernel and dispatcher
// (pkg/bootinfo.Boot constructs both).
func New(k *proc.Kernel, d *kcall.Dispatcher) *Runtime {
	return &Runtime{kernel: k, dispatcher: d, wake: make(map[proc.ProcessId]chan struct{})}
}

// wakeChan returns pid's wake channel, creating it on first use. The buffer
// of 1 means "wake pid" is a fire-and-forget, idempotent send: a pid that is
// already scheduled to wake (or already running) never blocks its waker.
func (rt *Runtime) wakeChan(pid proc.ProcessId) chan struct{} {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	ch, ok := rt.wake[pid]
	if !ok {
		ch = make(chan struct{}, 1)
		rt.wake[pid] = ch
	}
	return ch
}

// nudge wakes whichever pid is now current, a no-op if that goroutine is
// already running (its channel send is simply dropped, since every
// goroutine re-checks CurrentPid in a loop rather than trusting a single
// wake to mean it's truly its turn).
func (rt *Runtime) nudge() {
	ch := rt.wakeChan(rt.kernel.CurrentPid())
	select {
	case ch <- struct{}{}:
	default:
	}
}

// settle blocks s's goroutine until the scheduler has made s.pid current
// again, resynchronizing s.ctx from the process table each time it wakes.
// This is the heart of the simulation: a kernel call that switches away
// from s writes the new current process's context into *s.ctx* (since that
// is the pointer the caller happened to pass in) rather than into that
// other process's own goroutine-local variable, so the only way for a
// resumed process to recover its own register state is to re-read it back
// out of the process table via Kernel.ContextOf once it becomes current
// again.
func (rt *Runtime) settle(s *Syscalls) {
	for rt.kernel.CurrentPid() != s.pid {
		rt.nudge()
		<-rt.wakeChan(s.pid)
		if c, err := rt.kernel.ContextOf(s.pid); err == nil {
			s.ctx = c
		}
	}
}

// Launch starts pid's goroutine: it parks until the scheduler first makes
// pid current, runs body, and then exits with code 0 if body returns
// without calling Exit itself. Boot-time Spawn callers use this directly;
// Fork uses it to bring the child to life.
func (rt *Runtime) Launch(pid proc.ProcessId, body func(*Syscalls)) {
	rt.live.Add(1)
	go func() {
		defer rt.live.Done()
		ctx, err := rt.kernel.ContextOf(pid)
		if err != nil {
			return
		}
		s := &Syscalls{rt: rt, pid: pid, ctx: ctx}
		rt.settle(s)
		body(s)
		s.Exit(0)
	}()
}

// Start kicks off the whole simulation: it preempts the idle kernel process
// once, handing "current" to whichever app Launch callers are waiting on
// (the ready queue's front), and wakes that pid's parked goroutine. From
// that point on every Exit and every blocking syscall forwards the baton
// itself; Start need not run again.
func (rt *Runtime) Start() {
	var ctx proc.ProcessContext
	rt.kernel.Preempt(&ctx)
	rt.nudge()
}

// Wait blocks until every launched process goroutine has exited, the way a
// test or a cmd/vkctl demo run waits for a whole process tree to finish.
func (rt *Runtime) Wait() {
	rt.live.Wait()
}
