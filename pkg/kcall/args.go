package kcall

import "fmt"

// SyscallArgs is the decoded argument tuple a trapped ProcessContext yields:
// the call number from the scratch register the ABI reserves for it, and up
// to three scratch-register arguments (spec §4.2). Grounded line-for-line on
// `SyscallArgs`/`impl Display for SyscallArgs` in the original's
// `interrupt/syscall/mod.rs`.
type SyscallArgs struct {
	Call Syscall
	Arg0 uint64
	Arg1 uint64
	Arg2 uint64
}

// NewSyscallArgs decodes a raw register tuple.
func NewSyscallArgs(call Syscall, arg0, arg1, arg2 uint64) SyscallArgs {
	return SyscallArgs{Call: call, Arg0: arg0, Arg1: arg1, Arg2: arg2}
}

// String renders the same fixed-width hex form the original's Display impl
// produces, used by klog's syscall trace line.
func (a SyscallArgs) String() string {
	return fmt.Sprintf("SYSCALL: %-10s (0x%016x, 0x%016x, 0x%016x)", a.Call, a.Arg0, a.Arg1, a.Arg2)
}
