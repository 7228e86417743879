// Package arch names the seams this core hands off to the architecture
// glue that spec.md §1 places out of scope: the descriptor table loaders,
// MSR syscall setup, and the low-level syscall/interrupt assembly. Nothing
// in this package has a real implementation here — cmd/kernel wires a
// stub that panics, and a real boot image supplies its own.
package arch

// Regs is the saved user register frame, following the syscall ABI
// (spec.md §6): selector in RAX, up to six args in RDI/RSI/RDX/R10/R8/R9,
// return in RAX. RIP/RSP/RFLAGS back the fast-return path.
type Regs struct {
	RAX, RDI, RSI, RDX, R10, R8, R9 uint64
	RIP, RSP, RFLAGS                uint64
}

// PortIO is the single port in/out primitive syscall 7 multiplexes.
type PortIO interface {
	In8(port uint16) uint8
	In16(port uint16) uint16
	In32(port uint16) uint32
	Out8(port uint16, v uint8)
	Out16(port uint16, v uint16)
	Out32(port uint16, v uint32)
}

// Frame0 is the black-box physical frame source spec.md §1 leaves out of
// scope: one zeroed 4 KiB page at a time. internal/frame builds the
// per-CPU-cached façade (component b) on top of this primitive.
type Frame0 interface {
	Frame0() (phys uint64, ok bool)
}

// TrapEntry is the register-save/restore contract the out-of-scope
// syscall/interrupt assembly stubs use to re-enter Go code: InstallSyscall
// registers the SYSCALL-instruction handler, InstallIRQ registers the
// handler for one hardware vector (32..48, spec.md §4.4).
type TrapEntry interface {
	InstallSyscall(handler func(regs *Regs))
	InstallIRQ(vec int, handler func())
}
