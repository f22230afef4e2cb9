package apprunner

import (
	"bytes"
	"testing"

	"github.com/vesper-os/vesperkernel/pkg/kcall"
	"github.com/vesper-os/vesperkernel/pkg/memframe"
	"github.com/vesper-os/vesperkernel/pkg/proc"
)

type memStream struct{ buf bytes.Buffer }

func (m *memStream) Read(p []byte) (int, error)  { return m.buf.Read(p) }
func (m *memStream) Write(p []byte) (int, error) { return m.buf.Write(p) }

func testRuntime(t *testing.T) (*Runtime, *proc.Kernel) {
	t.Helper()
	arena := memframe.NewAllocator()
	kernelPages := &proc.KernelPages{Ranges: []proc.PageRange{{Start: 0, End: 0x1000}}}
	cfg := proc.ManagerConfig{
		CodeBase:     0x40_0000,
		StackTop:     0x80_0000,
		StackSize:    4 * memframe.PageSize(),
		MaxHeapPages: 16,
	}
	apps := []proc.AppSpec{{Name: "fork-demo", CodeSize: memframe.PageSize()}}
	mgr := proc.NewProcessManager(arena, kernelPages, cfg, &memStream{}, &memStream{}, &memStream{}, apps)
	kernel := proc.NewKernel(mgr)
	return New(kernel, kcall.NewDispatcher(kernel)), kernel
}

// TestForkDemo_ChildAndParentDiverge reproduces app/fork/src/main.rs's
// shape: a process forks, the child reads the pre-fork value of a variable
// and exits with 64, the parent waits for it and observes that exit code
// while its own copy of the variable is untouched.
func TestForkDemo_ChildAndParentDiverge(t *testing.T) {
	rt, kernel := testRuntime(t)

	pid, err := kernel.Spawn("fork-demo", nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	var childSawC, parentSawC int64
	var parentWaitRet int64
	var childPidSeen proc.ProcessId

	rt.Launch(pid, func(s *Syscalls) {
		c := int64(32)
		childPid := s.Fork(func(child *Syscalls) {
			childSawC = c
			child.Exit(64)
		})
		if childPid == 0 {
			t.Errorf("Fork returned 0, want a live child pid")
			return
		}
		childPidSeen = childPid
		parentWaitRet = s.WaitPid(childPid)
		parentSawC = c
	})

	rt.Start()
	rt.Wait()

	if childPidSeen == 0 {
		t.Fatalf("child was never forked")
	}
	if childSawC != 32 {
		t.Fatalf("childSawC = %d, want 32 (child's own copy, pre-mutation)", childSawC)
	}
	if parentSawC != 32 {
		t.Fatalf("parentSawC = %d, want 32 (parent's copy must be unaffected by the child)", parentSawC)
	}
	if parentWaitRet != 64 {
		t.Fatalf("parentWaitRet = %d, want 64", parentWaitRet)
	}
}

// TestSpawnTwoSiblings_BothRunToCompletion exercises Spawn plus a plain
// (non-forking) process running to completion via the implicit Exit(0)
// Launch performs when body returns normally.
func TestSpawnTwoSiblings_BothRunToCompletion(t *testing.T) {
	rt, kernel := testRuntime(t)

	pidA, err := kernel.Spawn("fork-demo", nil)
	if err != nil {
		t.Fatalf("Spawn A: %v", err)
	}
	pidB, err := kernel.Spawn("fork-demo", nil)
	if err != nil {
		t.Fatalf("Spawn B: %v", err)
	}

	var ran int
	rt.Launch(pidA, func(s *Syscalls) { ran++ })
	rt.Launch(pidB, func(s *Syscalls) { ran++ })

	rt.Start()
	rt.Wait()

	if ran != 2 {
		t.Fatalf("ran = %d, want both siblings to have run", ran)
	}
}

// TestWriteRead_RoundTripsThroughFdTable exercises the byte-stream
// syscalls end to end through a spawned process's goroutine.
func TestWriteRead_RoundTripsThroughFdTable(t *testing.T) {
	rt, kernel := testRuntime(t)

	pid, err := kernel.Spawn("fork-demo", nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	var n int64
	rt.Launch(pid, func(s *Syscalls) {
		n = s.Write(1, []byte("hello"))
	})

	rt.Start()
	rt.Wait()

	if n != 5 {
		t.Fatalf("Write returned %d, want 5", n)
	}
}
