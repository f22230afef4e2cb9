package proc

// GeneralRegisters mirrors the general-purpose register file captured at
// interrupt entry. Field names follow the x86_64 System V layout the
// original kernel's interrupt stub pushes, since that is the ABI spec.md
// describes (§4.2: "call number in the first scratch register... up to
// three arguments in the next three").
type GeneralRegisters struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
}

// ProcessContext is the complete architecturally-visible user state:
// general registers, instruction pointer, user stack pointer, CPU flags,
// and segment selectors (spec §3). It is populated at every interrupt
// entry and consumed at every interrupt exit; exactly one of "the live
// frame" or "the process's saved context slot" is authoritative at any
// time (spec §9, "Saved-context lifetime") — callers must not read a
// ProcessContext that might be concurrently written.
type ProcessContext struct {
	Regs   GeneralRegisters
	RIP    uint64
	RSP    uint64
	RFlags uint64
	CS, SS uint16
}

// Rax returns the syscall-return-value register.
func (c *ProcessContext) Rax() uint64 { return c.Regs.RAX }

// SetRax writes the syscall-return-value register, the mechanism by which
// a blocked syscall's result becomes visible to userland after the
// process is later rescheduled (spec §4.1 wake_up, §4.5 wait_pid).
func (c *ProcessContext) SetRax(v uint64) { c.Regs.RAX = v }

// SyscallArgs returns the three scratch-register arguments in the order
// the ABI defines them (spec §4.2: "arguments in the next three [scratch
// registers]", matching rdi, rsi, rdx in the System V calling convention).
func (c *ProcessContext) SyscallArgs() (arg0, arg1, arg2 uint64) {
	return c.Regs.RDI, c.Regs.RSI, c.Regs.RDX
}

// SetSyscallArgs is the userland-side counterpart used by pkg/apprunner to
// place arguments before trapping into the dispatcher.
func (c *ProcessContext) SetSyscallArgs(num, arg0, arg1, arg2 uint64) {
	c.Regs.RAX = num
	c.Regs.RDI = arg0
	c.Regs.RSI = arg1
	c.Regs.RDX = arg2
}
