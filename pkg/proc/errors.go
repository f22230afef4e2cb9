package proc

import "errors"

var (
	// ErrUnknownPid is returned by manager operations given a pid not
	// present in the process table.
	ErrUnknownPid = errors.New("proc: unknown pid")

	// ErrNotReady is returned by pushReady if the target process is not
	// in StatusReady (spec §4.1: "requires status == Ready").
	ErrNotReady = errors.New("proc: process is not ready")

	// ErrUnknownApp is returned by Spawn when no loaded app matches the
	// requested name (spec §7: "Unknown app: spawn returns 0").
	ErrUnknownApp = errors.New("proc: unknown app")

	// ErrKernelProcess is returned by Kill when the target is the kernel
	// pid (spec §4.5: "rejects pid 1").
	ErrKernelProcess = errors.New("proc: cannot kill the kernel process")

	// ErrHeapOverlapsStack is returned by spawn if the requested heap
	// cap would reach into the stack region.
	ErrHeapOverlapsStack = errors.New("proc: heap region would overlap the stack region")
)
