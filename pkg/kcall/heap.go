package kcall

import "sync"

// userHeap backs the Allocate/Deallocate syscalls (spec §4.2: "userland
// alloc-assist"). The Rust original hands back a raw `*mut u8` into a
// kernel-owned bump/free-list arena the user program then reads and writes
// directly; this simulation's "userland" is a Go closure running in the
// same address space as the kernel (pkg/apprunner), so handing out a real
// unsafe.Pointer would just be sharing Go-heap memory across a boundary
// that isn't actually there. Instead Allocate returns an opaque non-zero
// token and Deallocate consumes it — the same "pointer or 0 / pointer back
// to free" contract, without resorting to unsafe.
type userHeap struct {
	mu     sync.Mutex
	next   uint64
	blocks map[uint64][]byte
}

func newUserHeap() *userHeap {
	return &userHeap{next: 1, blocks: make(map[uint64][]byte)}
}

// allocate reserves size bytes (align is accepted for ABI parity with the
// original's Layout{size, align} but this simulation has no alignment
// constraints to honor, since tokens are opaque map keys, not addresses)
// and returns a nonzero token, or 0 if size is 0.
func (h *userHeap) allocate(size, align uint64) uint64 {
	_ = align
	if size == 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	token := h.next
	h.next++
	h.blocks[token] = make([]byte, size)
	return token
}

// read returns a copy of up to length bytes starting at a token's block,
// used by Spawn/Write decode (spec §4.2's name_ptr/buf_ptr arguments) —
// since this simulation's "userland" is a Go closure sharing the kernel's
// address space rather than a genuinely separate one, a raw pointer has no
// referent to decode; a heap token staged via stage is the Go-native
// substitute for "a pointer the user program handed the kernel".
func (h *userHeap) read(token, length uint64) ([]byte, bool) {
	if token == 0 {
		return nil, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	block, ok := h.blocks[token]
	if !ok {
		return nil, false
	}
	if length > uint64(len(block)) {
		length = uint64(len(block))
	}
	out := make([]byte, length)
	copy(out, block[:length])
	return out, true
}

// stage copies data into a freshly allocated token, the write-side
// counterpart to read. pkg/apprunner uses this to place argv-like byte
// buffers (a spawned app's name) before trapping into Dispatch with the
// resulting token standing in for a pointer.
func (h *userHeap) stage(data []byte) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	token := h.next
	h.next++
	block := make([]byte, len(data))
	copy(block, data)
	h.blocks[token] = block
	return token
}

// writeBack overwrites an existing token's block with data (truncated or
// zero-padded to the block's original length), the mechanism sysRead uses
// to deliver bytes into a buffer the caller staged before trapping in.
func (h *userHeap) writeBack(token uint64, data []byte) {
	if token == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	block, ok := h.blocks[token]
	if !ok {
		return
	}
	n := copy(block, data)
	for i := n; i < len(block); i++ {
		block[i] = 0
	}
}

// deallocate frees a previously allocated token. Freeing an unknown token
// (already freed, or never allocated) is silently ignored, matching the
// original's fire-and-forget `sys_deallocate` which returns nothing and
// performs no validation beyond the caller-supplied layout.
func (h *userHeap) deallocate(token uint64) {
	if token == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.blocks, token)
}
