package proc

import (
	"sync"

	"github.com/vesper-os/vesperkernel/pkg/memframe"
)

// Region is a page-aligned virtual address range, [Start, End).
type Region struct {
	Start, End uint64
}

// Contains reports whether addr lies in the region.
func (r Region) Contains(addr uint64) bool { return addr >= r.Start && addr < r.End }

// ProcessVm owns the address-space layout of one process: a kernel-shared
// region (via the embedded PageTableContext's kernel half), a code region
// (the loaded image), a fixed-top downward-growing stack mapped lazily on
// first touch, and a heap grown/shrunk by brk (spec §4.3).
type ProcessVm struct {
	mu sync.Mutex

	pt *PageTableContext

	Code  Region
	Stack Region // Stack.End is the fixed top; Stack.Start is the lowest allowable address
	Heap  Region // Heap.Start is fixed; Heap.End moves via Brk

	maxHeapEnd uint64
}

// NewProcessVm lays out a fresh address space. heapStart must already be
// page-aligned (callers round code_end up themselves, per spec §4.3:
// "heap (starts at code_end rounded to page)").
func NewProcessVm(pt *PageTableContext, code, stack Region, heapStart, maxHeapEnd uint64) *ProcessVm {
	return &ProcessVm{
		pt:         pt,
		Code:       code,
		Stack:      stack,
		Heap:       Region{Start: heapStart, End: heapStart},
		maxHeapEnd: maxHeapEnd,
	}
}

// PageTable exposes the underlying table for manager-level bookkeeping
// (teardown, refcount inspection).
func (vm *ProcessVm) PageTable() *PageTableContext { return vm.pt }

// HandlePageFault resolves lazy stack growth. Faults outside the stack
// region return false; neither ProcessVm nor the manager kills the
// process on a false return, that is left to the caller of
// Kernel.HandlePageFault.
func (vm *ProcessVm) HandlePageFault(addr uint64) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if !vm.Stack.Contains(addr) {
		return false
	}
	vm.pt.Map(addr)
	return true
}

// Brk queries (newEnd == nil) or resizes the heap's upper bound. Growth
// is capped at maxHeapEnd; on overflow the prior heap_end is returned
// unchanged, the sentinel policy spec §4.3 documents ("userland detects
// lack of movement"). The heap is kept disjoint from the stack region by
// construction: callers must lay the two out non-overlapping at spawn
// time, and maxHeapEnd must never be set to reach into the stack region.
func (vm *ProcessVm) Brk(newEnd *uint64) uint64 {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if newEnd == nil {
		return vm.Heap.End
	}

	target := roundUpPage(*newEnd)
	if target < vm.Heap.Start {
		return vm.Heap.End
	}
	if target > vm.maxHeapEnd {
		return vm.Heap.End
	}

	switch {
	case target > vm.Heap.End:
		for addr := vm.Heap.End; addr < target; addr += memframe.PageSize() {
			vm.pt.Map(addr)
		}
	case target < vm.Heap.End:
		for addr := target; addr < vm.Heap.End; addr += memframe.PageSize() {
			vm.pt.Unmap(addr)
		}
	}

	vm.Heap.End = target
	return target
}

// Fork deep-clones the address space: the page table is cloned eagerly
// (spec §4.4 step 3), and the region bookkeeping is copied by value since
// Region is a plain struct.
func (vm *ProcessVm) Fork() *ProcessVm {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	return &ProcessVm{
		pt:         vm.pt.Fork(),
		Code:       vm.Code,
		Stack:      vm.Stack,
		Heap:       vm.Heap,
		maxHeapEnd: vm.maxHeapEnd,
	}
}

// Teardown releases the process's claim on its page table (spec I5: a
// Dead process's frames are freed only after its exit code is delivered).
func (vm *ProcessVm) Teardown() {
	vm.pt.Drop()
}

func roundUpPage(addr uint64) uint64 {
	ps := memframe.PageSize()
	if rem := addr % ps; rem != 0 {
		return addr + (ps - rem)
	}
	return addr
}
