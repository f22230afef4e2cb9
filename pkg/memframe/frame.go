// Package memframe is a stand-in for the kernel frame allocator that
// spec.md declares out of scope: "the kernel frame allocator (consumed as
// allocate_frame / deallocate_frame)". It is deliberately the thinnest
// possible shim — a free-list over a growable byte arena — since the real
// allocator is an external collaborator, not a component this module
// designs.
package memframe

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// pageSize is resolved once at package init, mirroring the way
// runsc/boot/loader.go queries host parameters via golang.org/x/sys/unix
// rather than hardcoding them. 4096 is the fallback for platforms where
// Getpagesize is unavailable or returns something nonsensical.
var pageSize = resolvePageSize()

func resolvePageSize() int {
	if sz := unix.Getpagesize(); sz > 0 {
		return sz
	}
	return 4096
}

// PageSize returns the simulated physical page size in bytes.
func PageSize() uint64 { return uint64(pageSize) }

// FrameID names a physical frame. It is never reused while the frame it
// names is live, but indices are recycled once a frame is freed.
type FrameID uint64

// Frame is one physical page of backing storage. Processes never hold a
// *Frame directly across a fork; PageTableContext clones contents into a
// freshly allocated Frame instead (spec §4.4 step 3: duplicate the frame,
// copy bytes, never share a writable frame across processes).
type Frame struct {
	ID   FrameID
	Data []byte
}

// Allocator is a simple free-list frame pool. It is concurrency-safe
// because multiple ProcessVm values may allocate/release frames while
// holding only their own locks, not the scheduler's global one.
type Allocator struct {
	mu     sync.Mutex
	frames map[FrameID]*Frame
	free   []FrameID
	next   FrameID
}

// NewAllocator returns an empty frame pool.
func NewAllocator() *Allocator {
	return &Allocator{frames: make(map[FrameID]*Frame)}
}

// Allocate returns a zeroed frame.
func (a *Allocator) Allocate() *Frame {
	a.mu.Lock()
	defer a.mu.Unlock()

	var id FrameID
	if n := len(a.free); n > 0 {
		id = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		id = a.next
		a.next++
	}

	f := &Frame{ID: id, Data: make([]byte, pageSize)}
	a.frames[id] = f
	return f
}

// Duplicate allocates a new frame and copies src's contents into it,
// implementing the eager per-page duplication spec §4.4 requires for fork.
func (a *Allocator) Duplicate(src *Frame) *Frame {
	dst := a.Allocate()
	copy(dst.Data, src.Data)
	return dst
}

// Deallocate returns a frame to the free list. Deallocating an unknown or
// already-freed frame is a caller bug; it panics rather than silently
// corrupting the free list, since that invariant is cheap to hold here
// and expensive to debug once violated.
func (a *Allocator) Deallocate(f *Frame) {
	if f == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.frames[f.ID]; !ok {
		panic(fmt.Sprintf("memframe: double free of frame %d", f.ID))
	}
	delete(a.frames, f.ID)
	a.free = append(a.free, f.ID)
}

// Live reports the number of currently allocated frames, used by tests to
// assert that fork/exit leave no frames leaked.
func (a *Allocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.frames)
}
