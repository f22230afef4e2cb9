package proc

import (
	"sync"

	"github.com/vesper-os/vesperkernel/pkg/memframe"
)

// pageOf rounds addr down to the containing page boundary.
func pageOf(addr uint64) uint64 {
	ps := memframe.PageSize()
	return addr - (addr % ps)
}

// KernelPages describes the kernel-shared region every process maps
// identically (spec §3: "Kernel-shared region: mapped identically in
// every process"). It carries no per-process frames of its own — every
// PageTableContext holds a pointer to the same KernelPages, which is the
// Go expression of "share, don't clone, the kernel half".
type KernelPages struct {
	Ranges []PageRange
}

// PageRange is a page-aligned virtual address range, [Start, End).
type PageRange struct {
	Start, End uint64
}

// Contains reports whether addr falls in any of the kernel's ranges.
func (k *KernelPages) Contains(addr uint64) bool {
	if k == nil {
		return false
	}
	for _, r := range k.Ranges {
		if addr >= r.Start && addr < r.End {
			return true
		}
	}
	return false
}

// PageTableContext is a reference-counted handle to a process's user-half
// page table plus a shared pointer to the kernel half (spec §3). The count
// starts at one and no code path takes a second reference: every process,
// the kernel process included, gets its own PageTableContext, and no two
// processes share one. Fork deep-clones the user-half entries, one frame at a time, so
// that after fork a write by either process is invisible to the other
// (spec §4.4 step 3, §9: strict isolation).
type PageTableContext struct {
	mu      sync.Mutex
	arena   *memframe.Allocator
	kernel  *KernelPages
	users   map[uint64]*memframe.Frame // page-aligned vaddr -> frame
	refs    *int32
}

// NewPageTableContext allocates a fresh, empty user half sharing the given
// kernel half.
func NewPageTableContext(arena *memframe.Allocator, kernel *KernelPages) *PageTableContext {
	refs := int32(1)
	return &PageTableContext{
		arena:  arena,
		kernel: kernel,
		users:  make(map[uint64]*memframe.Frame),
		refs:   &refs,
	}
}

// Fork deep-clones every user-half page into freshly allocated frames,
// byte for byte, at the same virtual address (spec §4.4 step 3). The
// kernel half is shared, never cloned.
func (p *PageTableContext) Fork() *PageTableContext {
	p.mu.Lock()
	defer p.mu.Unlock()

	refs := int32(1)
	child := &PageTableContext{
		arena:  p.arena,
		kernel: p.kernel,
		users:  make(map[uint64]*memframe.Frame, len(p.users)),
		refs:   &refs,
	}
	for addr, frame := range p.users {
		child.users[addr] = p.arena.Duplicate(frame)
	}
	return child
}

// Map installs a freshly allocated frame at addr's page and returns it; if
// the page is already mapped, its existing frame is returned unchanged.
func (p *PageTableContext) Map(addr uint64) *memframe.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr = pageOf(addr)
	if f, ok := p.users[addr]; ok {
		return f
	}
	f := p.arena.Allocate()
	p.users[addr] = f
	return f
}

// Unmap releases the frame backing addr, if any.
func (p *PageTableContext) Unmap(addr uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr = pageOf(addr)
	if f, ok := p.users[addr]; ok {
		delete(p.users, addr)
		p.arena.Deallocate(f)
	}
}

// Lookup returns the frame mapped at addr, if mapped.
func (p *PageTableContext) Lookup(addr uint64) (*memframe.Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.users[pageOf(addr)]
	return f, ok
}

// Drop releases the table's reference; the last holder frees every
// exclusively-owned user frame (spec §5: "the last drop frees the root
// and all exclusively-owned interior frames").
func (p *PageTableContext) Drop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.refs--
	if *p.refs > 0 {
		return
	}
	for addr, f := range p.users {
		delete(p.users, addr)
		p.arena.Deallocate(f)
	}
}
