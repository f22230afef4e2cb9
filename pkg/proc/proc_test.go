package proc

import (
	"bytes"
	"testing"

	"github.com/vesper-os/vesperkernel/pkg/memframe"
)

// memStream is a trivial in-memory FileDescriptor for use in tests, since
// Console/Fifo devices (pkg/console) have no place in a package-local unit
// test.
type memStream struct {
	buf bytes.Buffer
}

func (m *memStream) Read(p []byte) (int, error)  { return m.buf.Read(p) }
func (m *memStream) Write(p []byte) (int, error) { return m.buf.Write(p) }

func testManager(t *testing.T) *ProcessManager {
	t.Helper()
	arena := memframe.NewAllocator()
	kernel := &KernelPages{Ranges: []PageRange{{Start: 0, End: 0x1000}}}
	cfg := ManagerConfig{
		CodeBase:     0x40_0000,
		StackTop:     0x80_0000,
		StackSize:    4 * memframe.PageSize(),
		MaxHeapPages: 16,
	}
	apps := []AppSpec{{Name: "hello", CodeSize: memframe.PageSize()}}
	return NewProcessManager(arena, kernel, cfg, &memStream{}, &memStream{}, &memStream{}, apps)
}

func TestNewProcessManager_KernelProcessRunning(t *testing.T) {
	m := testManager(t)
	if m.currentPid() != KernelPID {
		t.Fatalf("current = %d, want KernelPID", m.currentPid())
	}
	if m.Current().Status() != StatusRunning {
		t.Fatalf("kernel process status = %v, want Running", m.Current().Status())
	}
}

func TestSpawn_LaysOutFreshAddressSpace(t *testing.T) {
	m := testManager(t)
	pid, err := m.spawn(m.apps[0], map[string]string{"X": "1"}, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	p, err := m.lookup(pid)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if p.Status() != StatusReady {
		t.Fatalf("status = %v, want Ready", p.Status())
	}
	if got, want := p.Context().RIP, m.cfg.CodeBase; got != want {
		t.Fatalf("RIP = %#x, want %#x", got, want)
	}
	if v, ok := p.Env("X"); !ok || v != "1" {
		t.Fatalf("env X = %q, %v, want 1, true", v, ok)
	}
}

func TestSpawn_UnknownAppRejectedByKernel(t *testing.T) {
	m := testManager(t)
	k := NewKernel(m)
	if _, err := k.Spawn("does-not-exist", nil); err != ErrUnknownApp {
		t.Fatalf("err = %v, want ErrUnknownApp", err)
	}
}

func TestFork_StaticIsolation(t *testing.T) {
	m := testManager(t)
	k := NewKernel(m)

	parentPid, err := m.spawn(m.apps[0], nil, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	parent, _ := m.lookup(parentPid)

	// Touch one heap page so there is a frame to diverge.
	heapAddr := parent.VM().Brk(nil)
	newEnd := heapAddr + memframe.PageSize()
	parent.Brk(&newEnd)

	frame := parent.VM().PageTable().Map(heapAddr)
	frame.Data[0] = 0xAA

	var ctx ProcessContext
	m.ready = nil
	m.current = parentPid
	parent.SetStatus(StatusRunning)
	ctx = parent.Context()

	childPid, err := k.Fork(&ctx)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}

	child, err := m.lookup(childPid)
	if err != nil {
		t.Fatalf("lookup child: %v", err)
	}

	childFrame, ok := child.VM().PageTable().Lookup(heapAddr)
	if !ok {
		t.Fatalf("child has no frame at %#x after fork", heapAddr)
	}
	if childFrame.Data[0] != 0xAA {
		t.Fatalf("child frame[0] = %#x, want 0xAA (copied at fork)", childFrame.Data[0])
	}

	// Mutate the parent's frame after fork; the child must not observe it
	// (spec §9's resolved open question: strict per-process isolation, no
	// copy-on-write sharing survives past the fork boundary).
	frame.Data[0] = 0xBB
	if childFrame.Data[0] != 0xAA {
		t.Fatalf("child frame[0] changed to %#x after parent write; isolation violated", childFrame.Data[0])
	}

	// And the reverse: mutate the child, parent must be unaffected.
	childFrame.Data[1] = 0xCC
	if frame.Data[1] == 0xCC {
		t.Fatalf("parent frame[1] changed after child write; isolation violated")
	}
}

func TestFork_ChildReturnsZeroParentReturnsChildPid(t *testing.T) {
	m := testManager(t)
	k := NewKernel(m)

	parentPid, err := m.spawn(m.apps[0], nil, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	parent, _ := m.lookup(parentPid)
	parent.SetStatus(StatusRunning)
	m.current = parentPid
	m.ready = nil

	ctx := parent.Context()
	childPid, err := k.Fork(&ctx)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}

	child, _ := m.lookup(childPid)
	if got := child.Context().Rax(); got != 0 {
		t.Fatalf("child saved rax = %d, want 0", got)
	}
	if got := parent.Context().Rax(); got != uint64(childPid) {
		t.Fatalf("parent saved rax = %d, want child pid %d", got, childPid)
	}
}

func TestExit_WakesBlockedWaiterAndReapsChild(t *testing.T) {
	m := testManager(t)
	k := NewKernel(m)

	parentPid, err := m.spawn(m.apps[0], nil, nil)
	if err != nil {
		t.Fatalf("spawn parent: %v", err)
	}
	childPid, err := m.spawn(m.apps[0], nil, &parentPid)
	if err != nil {
		t.Fatalf("spawn child: %v", err)
	}

	parent, _ := m.lookup(parentPid)
	parent.SetStatus(StatusRunning)
	m.current = parentPid
	m.ready = nil

	var parentCtx ProcessContext
	if err := k.WaitPid(childPid, &parentCtx); err != nil {
		t.Fatalf("WaitPid: %v", err)
	}
	if parent.Status() != StatusBlocked {
		t.Fatalf("parent status = %v, want Blocked", parent.Status())
	}

	child, _ := m.lookup(childPid)
	child.SetStatus(StatusRunning)
	m.current = childPid

	var childCtx ProcessContext
	k.Exit(77, &childCtx)

	if got := parent.Context().Rax(); got != 77 {
		t.Fatalf("parent's woken rax = %d, want 77", got)
	}
	// The woken parent is the only ready process, so Exit's final
	// switchNext dispatches it.
	if parent.Status() != StatusRunning {
		t.Fatalf("parent status = %v, want Running", parent.Status())
	}
	if _, err := m.lookup(childPid); err == nil {
		t.Fatalf("dead child still present in table after its exit woke a blocked waiter")
	}

	// A second wait_pid on the same pid must report unknown pid, not
	// re-deliver the exit code (spec P1: exactly once).
	var again ProcessContext
	if err := k.WaitPid(childPid, &again); err != ErrUnknownPid {
		t.Fatalf("second WaitPid err = %v, want ErrUnknownPid", err)
	}
}

func TestFork_ChildStartsWithNoInheritedSiblings(t *testing.T) {
	m := testManager(t)
	k := NewKernel(m)

	parentPid, err := m.spawn(m.apps[0], nil, nil)
	if err != nil {
		t.Fatalf("spawn parent: %v", err)
	}
	firstChildPid, err := m.spawn(m.apps[0], nil, &parentPid)
	if err != nil {
		t.Fatalf("spawn first child: %v", err)
	}

	parent, _ := m.lookup(parentPid)
	parent.SetStatus(StatusRunning)
	m.current = parentPid
	m.ready = nil

	ctx := parent.Context()
	forkedChildPid, err := k.Fork(&ctx)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}

	forkedChild, _ := m.lookup(forkedChildPid)
	if got := forkedChild.Data().Children; len(got) != 0 {
		t.Fatalf("forked child's Children = %v, want empty (not the parent's existing kids %v)", got, []ProcessId{firstChildPid})
	}
}

func TestWaitPid_DeadChildReapedImmediately(t *testing.T) {
	m := testManager(t)
	k := NewKernel(m)

	childPid, err := m.spawn(m.apps[0], nil, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	child, _ := m.lookup(childPid)
	child.Kill(42)

	var ctx ProcessContext
	if err := k.WaitPid(childPid, &ctx); err != nil {
		t.Fatalf("WaitPid: %v", err)
	}
	if got := ctx.Rax(); got != 42 {
		t.Fatalf("exit code = %d, want 42", got)
	}
	if _, err := m.lookup(childPid); err == nil {
		t.Fatalf("child still present in table after reap")
	}
}

func TestWaitPid_UnknownPid(t *testing.T) {
	m := testManager(t)
	k := NewKernel(m)
	var ctx ProcessContext
	if err := k.WaitPid(9999, &ctx); err != ErrUnknownPid {
		t.Fatalf("err = %v, want ErrUnknownPid", err)
	}
}

func TestPreempt_TicksTheRotatedOutProcess(t *testing.T) {
	m := testManager(t)
	k := NewKernel(m)

	pid, err := m.spawn(m.apps[0], nil, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	p, _ := m.lookup(pid)
	p.SetStatus(StatusRunning)
	m.current = pid

	ctx := p.Context()
	k.Preempt(&ctx)

	if got := p.Ticks(); got != 1 {
		t.Fatalf("ticks after one Preempt = %d, want 1", got)
	}
}

func TestKill_RejectsKernelProcess(t *testing.T) {
	m := testManager(t)
	k := NewKernel(m)
	var ctx ProcessContext
	if err := k.Kill(KernelPID, &ctx); err != ErrKernelProcess {
		t.Fatalf("err = %v, want ErrKernelProcess", err)
	}
}

func TestKill_OrphansReparentToKernel(t *testing.T) {
	m := testManager(t)

	parentPid, err := m.spawn(m.apps[0], nil, nil)
	if err != nil {
		t.Fatalf("spawn parent: %v", err)
	}
	childPid, err := m.spawn(m.apps[0], nil, &parentPid)
	if err != nil {
		t.Fatalf("spawn child: %v", err)
	}

	k := NewKernel(m)
	var ctx ProcessContext
	if err := k.Kill(parentPid, &ctx); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	child, err := m.lookup(childPid)
	if err != nil {
		t.Fatalf("lookup child: %v", err)
	}
	if child.Data().Parent == nil || *child.Data().Parent != KernelPID {
		t.Fatalf("child parent = %v, want KernelPID", child.Data().Parent)
	}
}

func TestSemaphore_FIFOWakeOrder(t *testing.T) {
	s := NewSemaphoreSet()
	if !s.New(1, 0) {
		t.Fatalf("New returned false for a fresh key")
	}

	r1 := s.Wait(1, 10)
	if r1.Kind != SemBlock {
		t.Fatalf("first waiter kind = %v, want SemBlock", r1.Kind)
	}
	r2 := s.Wait(1, 11)
	if r2.Kind != SemBlock {
		t.Fatalf("second waiter kind = %v, want SemBlock", r2.Kind)
	}

	sig1 := s.Signal(1)
	if sig1.Kind != SemWakeUp || sig1.Pid != 10 {
		t.Fatalf("first signal = %+v, want wake pid 10", sig1)
	}
	sig2 := s.Signal(1)
	if sig2.Kind != SemWakeUp || sig2.Pid != 11 {
		t.Fatalf("second signal = %+v, want wake pid 11", sig2)
	}
	sig3 := s.Signal(1)
	if sig3.Kind != SemOk {
		t.Fatalf("third signal kind = %v, want SemOk (counter incremented)", sig3.Kind)
	}
}

func TestSemaphore_ScrubWaiterOnKill(t *testing.T) {
	s := NewSemaphoreSet()
	s.New(1, 0)
	s.Wait(1, 10)
	s.Wait(1, 11)

	s.ScrubWaiter(10)

	sig := s.Signal(1)
	if sig.Kind != SemWakeUp || sig.Pid != 11 {
		t.Fatalf("signal after scrub = %+v, want wake pid 11", sig)
	}
}

func TestBrk_CappedAtMaxHeapAndRejectsShrinkBelowStart(t *testing.T) {
	m := testManager(t)
	pid, err := m.spawn(m.apps[0], nil, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	p, _ := m.lookup(pid)

	start := p.VM().Brk(nil)
	huge := start + m.cfg.MaxHeapPages*memframe.PageSize()*2
	got := p.Brk(&huge)
	if got != start {
		t.Fatalf("Brk grown past cap returned %#x, want unchanged %#x", got, start)
	}

	grown := start + memframe.PageSize()
	if got := p.Brk(&grown); got != grown {
		t.Fatalf("Brk grow = %#x, want %#x", got, grown)
	}

	tooLow := start - memframe.PageSize()
	if got := p.Brk(&tooLow); got != grown {
		t.Fatalf("Brk shrink below start returned %#x, want unchanged %#x", got, grown)
	}
}

func TestReadWriteFd_InvalidFdReturnsNegativeOne(t *testing.T) {
	m := testManager(t)
	pid, err := m.spawn(m.apps[0], nil, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	p, _ := m.lookup(pid)

	if n := p.Data().WriteFd(99, []byte("x")); n != -1 {
		t.Fatalf("WriteFd on invalid fd = %d, want -1", n)
	}
	if n := p.Data().ReadFd(-1, make([]byte, 1)); n != -1 {
		t.Fatalf("ReadFd on negative fd = %d, want -1", n)
	}

	buf := make([]byte, 8)
	if n := p.Data().ReadFd(3, buf); n != -1 {
		t.Fatalf("ReadFd on unreserved fd = %d, want -1", n)
	}
}
