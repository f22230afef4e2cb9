package proc

import "sync"

// Kernel is the exported entry point: a ProcessManager plus the single
// mutex that stands in for "CPU interrupts masked" (spec §5: "the kernel
// runs with CPU interrupts masked during every manager operation — all
// state mutation is implicitly serialized"). Every function below holds
// Kernel.mu for the span of one logical kernel operation, the same way
// kernel/src/proc/mod.rs wraps a handful of ProcessManager calls in
// `x86_64::instructions::interrupts::without_interrupts(|| { ... })`.
type Kernel struct {
	mu      sync.Mutex
	Manager *ProcessManager
}

// NewKernel wraps an already-constructed ProcessManager.
func NewKernel(m *ProcessManager) *Kernel {
	return &Kernel{Manager: m}
}

// Switch saves the caller's context, marks it Ready, and dispatches the
// next ready process into ctx (spec §4.1, the timer-interrupt path;
// mirrors `pub fn switch` in kernel/src/proc/mod.rs).
func (k *Kernel) Switch(ctx *ProcessContext) {
	k.mu.Lock()
	defer k.mu.Unlock()
	pid := k.Manager.saveCurrent(*ctx)
	k.Manager.pushReady(pid)
	k.Manager.switchNext(ctx)
}

// Fork implements spec §4.4 in full: save the caller, clone its address
// space and data into a new pid, override the return registers, enqueue
// both parent and child Ready, and switch to whichever the FIFO picks
// next. Mirrors `pub fn fork` in kernel/src/proc/mod.rs.
func (k *Kernel) Fork(ctx *ProcessContext) (ProcessId, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	parentPid := k.Manager.saveCurrent(*ctx)
	childPid, err := k.Manager.fork(parentPid)
	if err != nil {
		return 0, err
	}
	if err := k.Manager.pushReady(childPid); err != nil {
		return 0, err
	}
	if err := k.Manager.pushReady(parentPid); err != nil {
		return 0, err
	}
	k.Manager.switchNext(ctx)
	return childPid, nil
}

// Exit implements spec §4.5: mark current Dead, wake a waiting parent if
// any, reparent orphans to the kernel process, and switch away. Mirrors
// `pub fn process_exit` plus the reparenting/waking this spec adds to the
// Rust original's unfinished stub.
func (k *Kernel) Exit(code int64, ctx *ProcessContext) {
	k.mu.Lock()
	defer k.mu.Unlock()

	pid := k.Manager.killSelf(code)
	k.Manager.exitOrphans(pid)

	if exited, _ := k.Manager.lookup(pid); exited != nil {
		if parentID := exited.Data().Parent; parentID != nil {
			if parent, err := k.Manager.lookup(*parentID); err == nil {
				if parent.Status() == StatusBlocked && k.blockedOnChild(parent, pid) {
					k.Manager.wakeUp(parent.ID(), uint64(code))
					// The waiter just got exited's code by the only route
					// it will ever get it (waitPid's own Dead-lookup branch
					// never fires for this pid now), so reap it here too:
					// otherwise the zombie lingers in the table with its
					// frames un-freed, and a later wait_pid on this pid
					// re-delivers the code instead of reporting unknown pid.
					k.Manager.reap(exited)
				}
			}
		}
	}

	k.Manager.switchNext(ctx)
}

// blockedOnChild is a best-effort heuristic: in this single-CPU kernel a
// Blocked process is blocked either on a semaphore or on wait_pid, and
// only wait_pid callers are ever woken by a child's exit, so any Blocked
// parent whose child just died is assumed to be the waiter. A richer
// kernel would record *what* a process is blocked on; spec §5 leaves this
// as an implementation-defined bookkeeping detail ("reachable from at
// least one wake source").
func (k *Kernel) blockedOnChild(parent *Process, childPid ProcessId) bool {
	for _, c := range parent.Data().Children {
		if c == childPid {
			return true
		}
	}
	return false
}

// WaitPid implements spec §4.1/§4.5: if pid is already Dead, collect its
// exit code immediately; otherwise block the caller and switch away. The
// waker (Exit, above) has already written the exit code into the caller's
// saved return register by the time it is rescheduled.
func (k *Kernel) WaitPid(pid ProcessId, ctx *ProcessContext) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	code, done, err := k.Manager.waitPid(pid)
	if err != nil {
		// Unknown pid: nothing to wait for. Report immediately via the
		// same sentinel userland already treats as "no such process".
		ctx.SetRax(^uint64(0))
		return err
	}
	if done {
		ctx.SetRax(uint64(code))
		return nil
	}

	callerPid := k.Manager.saveCurrent(*ctx)
	k.Manager.block(callerPid)
	k.Manager.switchNext(ctx)
	return nil
}

// Kill implements spec §4.5: rejects the kernel pid, otherwise marks the
// target Dead (killing self switches away; killing another leaves the
// caller running).
func (k *Kernel) Kill(pid ProcessId, ctx *ProcessContext) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if pid == KernelPID {
		return ErrKernelProcess
	}

	if pid == k.Manager.currentPid() {
		self := k.Manager.killSelf(0xdead)
		k.Manager.exitOrphans(self)
		k.Manager.switchNext(ctx)
		return nil
	}
	if err := k.Manager.kill(pid, 0xdead); err != nil {
		return err
	}
	k.Manager.exitOrphans(pid)
	return nil
}

// Spawn starts a named application (spec §4.1/§4.2 Spawn syscall).
func (k *Kernel) Spawn(name string, env map[string]string) (ProcessId, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, app := range k.Manager.apps {
		if app.Name == name {
			parent := k.Manager.currentPid()
			return k.Manager.spawn(app, env, &parent)
		}
	}
	return 0, ErrUnknownApp
}

// SemWait implements the blocking half of the Sem syscall (spec §4.2/§4.6).
func (k *Kernel) SemWait(key uint32, ctx *ProcessContext) SemaphoreResult {
	k.mu.Lock()
	defer k.mu.Unlock()

	pid := k.Manager.currentPid()
	res := k.Manager.Current().SemWait(key, pid)
	if res.Kind == SemBlock {
		callerPid := k.Manager.saveCurrent(*ctx)
		k.Manager.block(callerPid)
		k.Manager.switchNext(ctx)
	}
	return res
}

// SemSignal implements the Sem-signal half (spec §4.2/§4.6).
func (k *Kernel) SemSignal(key uint32) SemaphoreResult {
	k.mu.Lock()
	defer k.mu.Unlock()

	res := k.Manager.Current().SemSignal(key)
	if res.Kind == SemWakeUp {
		k.Manager.wakeUp(res.Pid, 0)
	}
	return res
}

// NewSem, RemoveSem implement the remaining Sem sub-ops.
func (k *Kernel) NewSem(key uint32, init int64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Manager.Current().SemNew(key, init)
}

func (k *Kernel) RemoveSem(key uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Manager.Current().SemRemove(key)
}

// Brk implements the Brk syscall (spec §4.2/§4.3). Per the Rust original's
// own note ("brk does not need to get write lock"), this still takes the
// manager's scheduling lock only long enough to identify current; the
// actual resize runs under ProcessVm's own lock.
func (k *Kernel) Brk(newEnd *uint64) uint64 {
	k.mu.Lock()
	cur := k.Manager.Current()
	k.mu.Unlock()
	return cur.Brk(newEnd)
}

// Read, Write implement the byte-stream syscalls (spec §4.2, §6).
func (k *Kernel) Read(fd int, buf []byte) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Manager.readFd(fd, buf)
}

func (k *Kernel) Write(fd int, buf []byte) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Manager.writeFd(fd, buf)
}

// CurrentPid implements the GetPid syscall.
func (k *Kernel) CurrentPid() ProcessId {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Manager.currentPid()
}

// ContextOf returns a pid's saved register file. A goroutine-per-process
// userland runtime (pkg/apprunner) uses this to re-synchronize its own
// local context after being descheduled and later resumed by some other
// goroutine's switchNext call, since that call writes the resumed
// process's state into the *caller's* context variable, not into any
// variable this process's own goroutine can see directly.
func (k *Kernel) ContextOf(pid ProcessId) (ProcessContext, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.Manager.lookup(pid)
	if err != nil {
		return ProcessContext{}, err
	}
	return p.Context(), nil
}

// HandlePageFault implements the page-fault path (spec §4.1/§4.3): lazy
// stack growth on a hit, false on a miss so the caller can kill the
// process.
func (k *Kernel) HandlePageFault(addr uint64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Manager.handlePageFault(addr)
}

// Env reads a variable from current's environment.
func (k *Kernel) Env(key string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Manager.Current().Env(key)
}

// Stat returns a pid-ordered snapshot of the process table.
func (k *Kernel) Stat() []*Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Manager.snapshot()
}

// ListApp returns the loaded application list.
func (k *Kernel) ListApp() []AppSpec {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Manager.AppList()
}

// Preempt implements the timer-interrupt path: unconditionally rotate the
// ready queue (spec §5 suspension points: "timer interrupt (any user
// instruction boundary)"), ticking the rotated-out process's scheduling-
// quantum counter first (spec P6: round-robin fairness, observable via
// Stat's ticks column). It otherwise does the same save/enqueue/switch as
// Switch, reimplemented rather than composed since Kernel.mu isn't
// reentrant, and is named separately so callers documenting *why* they
// are switching (preemption vs. a cooperative yield) read clearly.
func (k *Kernel) Preempt(ctx *ProcessContext) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Manager.Current().Tick()
	pid := k.Manager.saveCurrent(*ctx)
	k.Manager.pushReady(pid)
	k.Manager.switchNext(ctx)
}
