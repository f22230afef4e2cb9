package proc

import (
	"github.com/vesper-os/vesperkernel/pkg/memframe"
)

// AppSpec is everything the manager needs from a loaded application image
// to lay out a fresh address space and register file (spec §4.1 spawn:
// "constructs ProcessVm by mapping ELF segments ... sets initial register
// file to point at ELF entry"), plus the descriptor metadata pkg/bootinfo
// decodes from an AppImage's specs.Process (spec §6's app descriptor
// metadata): a spawned process's argv/env/cwd default to these unless the
// caller of Kernel.Spawn overrides env explicitly. The loader (out of
// scope, spec §1) or pkg/bootinfo supplies these; the Go closure that
// plays the role of the loaded machine code lives above this package, in
// pkg/apprunner.
type AppSpec struct {
	Name     string
	CodeSize uint64
	Args     []string
	Env      map[string]string
	Cwd      string
}

// ManagerConfig fixes the virtual-address layout every spawned process
// gets (spec §4.3). Every process has its own page table, so there is no
// need to stagger these across processes the way a bump allocator would
// for a shared address space — every process can and does use the same
// virtual layout, exactly as real OS processes do.
type ManagerConfig struct {
	CodeBase     uint64
	StackTop     uint64
	StackSize    uint64
	MaxHeapPages uint64
}

// ProcessManager owns the process table, ready queue, and the currently
// running pid, plus the global operations spec §4.1 lists (spawn, fork,
// kill, wait_pid, block/wake_up, page-fault handling). Every method on
// ProcessManager assumes the caller already holds its lock; the Kernel
// methods in ops.go are the locking entry points and each
// holds the lock for the span of one logical kernel operation, mirroring
// `x86_64::instructions::interrupts::without_interrupts` wrapping a
// handful of manager calls in kernel/src/proc/mod.rs.
type ProcessManager struct {
	table   *processTable
	ready   []ProcessId
	current ProcessId
	pids    *pidAllocator

	arena  *memframe.Allocator
	kernel *KernelPages
	cfg    ManagerConfig

	stdin, stdout, stderr FileDescriptor

	apps []AppSpec
}

// NewProcessManager constructs the manager and its kernel process (pid 1),
// which becomes `current` immediately (spec §4.1: "the kernel process ...
// serves as the idle task and is always implicitly available"). It
// mirrors `proc::init` in kernel/src/proc/mod.rs.
func NewProcessManager(arena *memframe.Allocator, kernel *KernelPages, cfg ManagerConfig, stdin, stdout, stderr FileDescriptor, apps []AppSpec) *ProcessManager {
	m := &ProcessManager{
		table:  newProcessTable(),
		pids:   newPidAllocator(),
		arena:  arena,
		kernel: kernel,
		cfg:    cfg,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		apps:   apps,
	}

	pt := NewPageTableContext(arena, kernel)
	vm := NewProcessVm(pt, Region{}, Region{}, 0, 0)
	data := NewProcessData(nil, nil, "/", stdin, stdout, stderr, nil)
	kproc := NewProcess(KernelPID, "kernel", vm, data)
	kproc.SetStatus(StatusRunning)

	m.table.put(kproc)
	m.current = KernelPID
	return m
}

// AppList returns the read-only list of loaded applications.
func (m *ProcessManager) AppList() []AppSpec {
	out := make([]AppSpec, len(m.apps))
	copy(out, m.apps)
	return out
}

// lookup returns the process for pid, or ErrUnknownPid.
func (m *ProcessManager) lookup(pid ProcessId) (*Process, error) {
	p, ok := m.table.get(pid)
	if !ok {
		return nil, ErrUnknownPid
	}
	return p, nil
}

// Current returns the process currently marked Running.
func (m *ProcessManager) Current() *Process {
	p, _ := m.lookup(m.current)
	return p
}

// currentPid returns the CPU-local current pid (spec §9: "Global current
// process singleton ... a CPU-local cell written only by switch_next").
func (m *ProcessManager) currentPid() ProcessId { return m.current }

// saveCurrent writes ctx into current's saved slot and transitions it
// Running -> Ready, unless the caller already moved it to a different
// status (spec §4.1 save_current).
func (m *ProcessManager) saveCurrent(ctx ProcessContext) ProcessId {
	cur := m.Current()
	cur.SaveContext(ctx)
	if cur.Status() == StatusRunning {
		cur.SetStatus(StatusReady)
	}
	return cur.ID()
}

// pushReady appends pid to the ready queue (spec I2: every Ready process
// appears exactly once).
func (m *ProcessManager) pushReady(pid ProcessId) error {
	p, err := m.lookup(pid)
	if err != nil {
		return err
	}
	if p.Status() != StatusReady {
		return ErrNotReady
	}
	m.ready = append(m.ready, pid)
	return nil
}

// switchNext pops the ready queue's front (or selects the kernel pid if
// empty), loads its saved context into *ctx, marks it Running, and
// updates current (spec §4.1 switch_next).
func (m *ProcessManager) switchNext(ctx *ProcessContext) {
	var next ProcessId
	if len(m.ready) > 0 {
		next = m.ready[0]
		m.ready = m.ready[1:]
	} else {
		next = KernelPID
	}

	p, err := m.lookup(next)
	if err != nil {
		// The ready queue named a pid no longer in the table; fall back
		// to the kernel process rather than leaving current unset.
		p, _ = m.lookup(KernelPID)
		next = KernelPID
	}

	*ctx = p.Context()
	p.SetStatus(StatusRunning)
	m.current = next
}

// spawn allocates a pid, builds a fresh VM per spec's ManagerConfig
// layout, and enqueues the process Ready (spec §4.1 spawn). env is the
// caller's override (e.g. a shell's `env FOO=bar spawn ...`); when nil,
// the app image's own descriptor env (spec.Env) is used instead, so the
// loader-reported app metadata actually reaches a spawned process rather
// than being silently discarded.
func (m *ProcessManager) spawn(spec AppSpec, env map[string]string, parent *ProcessId) (ProcessId, error) {
	codeEnd := roundUpPage(m.cfg.CodeBase + spec.CodeSize)
	heapStart := codeEnd
	heapMax := heapStart + m.cfg.MaxHeapPages*memframe.PageSize()
	stack := Region{Start: m.cfg.StackTop - m.cfg.StackSize, End: m.cfg.StackTop}

	if heapMax > stack.Start {
		return 0, ErrHeapOverlapsStack
	}

	if env == nil {
		env = spec.Env
	}
	cwd := spec.Cwd
	if cwd == "" {
		cwd = "/"
	}

	pid := m.pids.allocate()
	pt := NewPageTableContext(m.arena, m.kernel)
	vm := NewProcessVm(pt, Region{Start: m.cfg.CodeBase, End: codeEnd}, stack, heapStart, heapMax)
	data := NewProcessData(env, spec.Args, cwd, m.stdin, m.stdout, m.stderr, parent)

	p := NewProcess(pid, spec.Name, vm, data)
	var ctx ProcessContext
	ctx.RIP = m.cfg.CodeBase
	ctx.RSP = m.cfg.StackTop
	p.SaveContext(ctx)

	m.table.put(p)
	p.SetStatus(StatusReady)
	m.ready = append(m.ready, pid)

	if parent != nil {
		if pp, err := m.lookup(*parent); err == nil {
			pp.Data().AddChild(pid)
		}
	}

	return pid, nil
}

// fork performs spec §4.4 steps 2-5: allocate a child pid, deep-clone the
// parent's address space and duplicate its ProcessData, set the child's
// saved context equal to the parent's but with the return registers
// overridden (child sees 0, parent sees the child's pid). Step 1 (save
// the caller context) and step 6 (enqueue both, switch) are the caller's
// responsibility — see Fork in ops.go, which composes this with
// saveCurrent/pushReady/switchNext exactly as kernel/src/proc/mod.rs's
// free `fork` function composes manager.fork() with the rest.
func (m *ProcessManager) fork(parentPid ProcessId) (ProcessId, error) {
	parent, err := m.lookup(parentPid)
	if err != nil {
		return 0, err
	}

	childPid := m.pids.allocate()
	childVm := parent.VM().Fork()
	childData := parent.Data().Fork(parentPid)

	childCtx := parent.Context()
	childCtx.SetRax(0)
	child := NewProcess(childPid, parent.Name(), childVm, childData)
	child.SaveContext(childCtx)
	child.SetStatus(StatusReady)

	parent.SetReturn(uint64(childPid))
	parent.Data().AddChild(childPid)

	m.table.put(child)
	return childPid, nil
}

// killSelf marks current Dead with code (spec §4.5 exit semantics, minus
// the reparenting/wake steps performed by the ops.go wrapper since those
// need the table-wide walk spec's exit describes).
func (m *ProcessManager) killSelf(code int64) ProcessId {
	pid := m.current
	p, _ := m.lookup(pid)
	p.Kill(code)
	return pid
}

// kill marks pid Dead with code, removing it from the ready queue if
// present and scrubbing it from any semaphore waiter queues (spec §4.5,
// §5: "Kill of a Blocked process removes it from any waiter queues").
func (m *ProcessManager) kill(pid ProcessId, code int64) error {
	p, err := m.lookup(pid)
	if err != nil {
		return err
	}
	p.Kill(code)
	m.removeFromReady(pid)

	// A killed process may be blocked waiting on any other live
	// process's semaphore table (semaphores are shared across fork), so
	// every live table's waiter list must be scrubbed, not just the
	// killed process's own.
	m.table.ascend(func(other *Process) bool {
		other.Data().Sems.ScrubWaiter(pid)
		return true
	})
	return nil
}

func (m *ProcessManager) removeFromReady(pid ProcessId) {
	for i, r := range m.ready {
		if r == pid {
			m.ready = append(m.ready[:i], m.ready[i+1:]...)
			return
		}
	}
}

// waitPid returns the target's exit code and removes it from the table if
// it is already Dead; otherwise reports not-yet (spec §4.1/§4.5).
func (m *ProcessManager) waitPid(pid ProcessId) (int64, bool, error) {
	p, err := m.lookup(pid)
	if err != nil {
		return 0, false, err
	}
	if p.Status() != StatusDead {
		return 0, false, nil
	}
	code := p.ExitCode()
	m.reap(p)
	return code, true, nil
}

// reap tears down a dead process's address space and removes it from the
// table (spec I5: freed only after its exit code is delivered).
func (m *ProcessManager) reap(p *Process) {
	p.VM().Teardown()
	m.table.remove(p.ID())
}

// block transitions pid to Blocked (spec §4.1 block).
func (m *ProcessManager) block(pid ProcessId) error {
	p, err := m.lookup(pid)
	if err != nil {
		return err
	}
	p.SetStatus(StatusBlocked)
	return nil
}

// wakeUp writes ret into pid's saved return register and re-enqueues it
// Ready (spec §4.1 wake_up).
func (m *ProcessManager) wakeUp(pid ProcessId, ret uint64) error {
	p, err := m.lookup(pid)
	if err != nil {
		return err
	}
	p.SetReturn(ret)
	p.SetStatus(StatusReady)
	return m.pushReady(pid)
}

// handlePageFault delegates to current's VM (spec §4.1/§4.3).
func (m *ProcessManager) handlePageFault(addr uint64) bool {
	return m.Current().VM().HandlePageFault(addr)
}

// readFd/writeFd delegate to current's fd table.
func (m *ProcessManager) readFd(fd int, buf []byte) int64  { return m.Current().Data().ReadFd(fd, buf) }
func (m *ProcessManager) writeFd(fd int, buf []byte) int64 { return m.Current().Data().WriteFd(fd, buf) }

// exitOrphans reparents every live child of pid to the kernel process
// (spec §4.5 exit: "reparent surviving children (orphans) to the kernel
// process").
func (m *ProcessManager) exitOrphans(pid ProcessId) {
	p, err := m.lookup(pid)
	if err != nil {
		return
	}
	for _, childPid := range p.Data().Children {
		child, err := m.lookup(childPid)
		if err != nil {
			continue
		}
		if child.Status() == StatusDead {
			continue
		}
		child.Data().Parent = new(ProcessId)
		*child.Data().Parent = KernelPID
		if kp, err := m.lookup(KernelPID); err == nil {
			kp.Data().AddChild(childPid)
		}
	}
}

// snapshot returns every live process in pid order, used by Stat/ListApp
// (and pkg/kstate) without exposing the table's internal btree type.
func (m *ProcessManager) snapshot() []*Process {
	out := make([]*Process, 0, m.table.len())
	m.table.ascend(func(p *Process) bool {
		out = append(out, p)
		return true
	})
	return out
}
