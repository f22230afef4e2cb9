package kstate

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/vesper-os/vesperkernel/pkg/memframe"
	"github.com/vesper-os/vesperkernel/pkg/proc"
)

type memStream struct{ buf bytes.Buffer }

func (m *memStream) Read(p []byte) (int, error)  { return m.buf.Read(p) }
func (m *memStream) Write(p []byte) (int, error) { return m.buf.Write(p) }

func testKernel(t *testing.T) *proc.Kernel {
	t.Helper()
	arena := memframe.NewAllocator()
	kernel := &proc.KernelPages{Ranges: []proc.PageRange{{Start: 0, End: 0x1000}}}
	cfg := proc.ManagerConfig{
		CodeBase:     0x40_0000,
		StackTop:     0x80_0000,
		StackSize:    4 * memframe.PageSize(),
		MaxHeapPages: 16,
	}
	apps := []proc.AppSpec{{Name: "hello", CodeSize: memframe.PageSize()}}
	mgr := proc.NewProcessManager(arena, kernel, cfg, &memStream{}, &memStream{}, &memStream{}, apps)
	return proc.NewKernel(mgr)
}

func TestDump_IncludesKernelProcessAndApps(t *testing.T) {
	k := testKernel(t)
	snap := Dump(k, 1234)

	if len(snap.Processes) != 1 || snap.Processes[0].Pid != proc.KernelPID {
		t.Fatalf("Processes = %+v, want exactly the kernel process", snap.Processes)
	}
	if len(snap.Apps) != 1 || snap.Apps[0] != "hello" {
		t.Fatalf("Apps = %v, want [hello]", snap.Apps)
	}
}

func TestWriteSnapshot_RoundTrips(t *testing.T) {
	k := testKernel(t)
	snap := Dump(k, 1)

	path := filepath.Join(t.TempDir(), "snap.json")
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
}

func TestDiff_ReportsTickChange(t *testing.T) {
	k := testKernel(t)
	before := Dump(k, 1)

	k.Manager.Current().Tick()
	after := Dump(k, 2)

	patch, err := Diff(before, after)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(patch) == 0 {
		t.Fatalf("Diff returned an empty patch for a changed tick count")
	}
	if !bytes.Contains(patch, []byte("ticks")) {
		t.Fatalf("patch = %s, want it to mention ticks", patch)
	}
}
