// Command kernel is the freestanding entry point: it wires the
// architecture-glue seams (internal/arch) to stub implementations, builds
// the boot-time singletons in the order spec.md §9 requires (console
// first, allocator second, per-CPU last), bootstraps the boot modules
// (internal/boot), and runs the scheduler loop forever.
//
// Grounded on the teacher's kernel/main.go init sequencing
// (phys_init -> dmap_init -> attach_devs -> sched loop), but none of the
// out-of-scope architecture glue (spec.md §1: GDT/IDT loaders, SYSCALL MSR
// setup, the trap/syscall assembly stubs, a real physical frame source) is
// implemented here — a real boot image links this package against its own
// glue instead of stubArch.
package main

import (
	"fmt"

	"kernel/internal/arch"
	"kernel/internal/boot"
	"kernel/internal/console"
	"kernel/internal/diag"
	"kernel/internal/frame"
	"kernel/internal/proc"
	"kernel/internal/sched"
	syscalls "kernel/internal/syscall"
	"kernel/internal/vm"
)

// stubArch satisfies arch.Frame0, arch.PortIO, and arch.TrapEntry with
// "not wired" panics. A real boot image supplies its own (spec.md §1).
type stubArch struct{}

func (stubArch) Frame0() (uint64, bool)         { panic("arch: not wired: Frame0") }
func (stubArch) In8(uint16) uint8               { panic("arch: not wired: In8") }
func (stubArch) In16(uint16) uint16             { panic("arch: not wired: In16") }
func (stubArch) In32(uint16) uint32             { panic("arch: not wired: In32") }
func (stubArch) Out8(uint16, uint8)             { panic("arch: not wired: Out8") }
func (stubArch) Out16(uint16, uint16)           { panic("arch: not wired: Out16") }
func (stubArch) Out32(uint16, uint32)           { panic("arch: not wired: Out32") }
func (stubArch) InstallSyscall(func(*arch.Regs)) { panic("arch: not wired: InstallSyscall") }
func (stubArch) InstallIRQ(int, func())          { panic("arch: not wired: InstallIRQ") }

var _ arch.Frame0 = stubArch{}
var _ arch.PortIO = stubArch{}
var _ arch.TrapEntry = stubArch{}

func main() {
	a := stubArch{}

	// console first, allocator second, per-CPU last (spec.md §9).
	con := console.New(0xb8000)
	fr := frame.New(a)
	pc := sched.New()

	// info would arrive from the 32-bit trampoline (spec.md §1, out of
	// scope); an empty Info here means no RAM is donated until a real
	// boot image supplies one.
	info := &boot.Info{}
	boot.Populate(fr, info, 0, 0)

	vm.SetKernelPDP(kernelPDPPlaceholder(fr))
	procs := boot.Bootstrap(fr, pc, info)
	fmt.Printf("kernel: booted %d module process(es)\n", len(procs))

	env := &syscalls.Env{Frame: fr, Con: con, Port: a, Counters: func() diag.Counters {
		return snapshotCounters(procs, pc)
	}}

	a.InstallSyscall(func(regs *arch.Regs) {
		p := pc.Current
		if p == nil {
			diag.Abort(con, "syscall trap with no current process", regs)
		}
		p.Regs = *regs
		dispatchOrAbort(env, con, pc, p)
		pc.Run(resumeStub, idleStub)
	})

	pc.Run(resumeStub, idleStub)
	select {}
}

// dispatchOrAbort runs syscalls.Dispatch and recovers a contract-violation
// panic (wrong handle granted, unpaired send, popping an unqueued item,
// and the like — see the panic() call sites across internal/ipc,
// internal/proc, and internal/dlist) into diag.Abort's distinctive-banner-
// then-halt-forever path (spec.md §7), rather than letting it unwind out
// of the trap handler as a bare Go panic.
func dispatchOrAbort(env *syscalls.Env, con *console.Console, pc *sched.PerCPU, p *proc.Process) {
	defer func() {
		if r := recover(); r != nil {
			diag.Abort(con, fmt.Sprintf("%v", r), &p.Regs)
		}
	}()
	syscalls.Dispatch(env, pc, p)
}

// kernelPDPPlaceholder allocates the one frame every address space's
// PML4[511] slot points at. A real boot image instead reuses the
// trampoline's high-half kernel mapping (spec.md §1); this stands in for
// it so cmd/kernel can construct address spaces at all.
func kernelPDPPlaceholder(fr *frame.Allocator) uint64 {
	p, ok := fr.Alloc()
	if !ok {
		panic("kernel: no frame for bootstrap kernel PDP")
	}
	return p
}

// resumeStub and idleStub stand in for the fast-return/full-restore
// register load and the "sti; hlt; cli" sequence (spec.md §4.4,
// architecture glue, out of scope).
func resumeStub(p *proc.Process, cr3Changed bool) {}
func idleStub()                                   {}

// snapshotCounters sums the live-object counts the D_PROF dump reports
// (spec.md §1b) across every booted process and the run queue.
func snapshotCounters(procs []*proc.Process, pc *sched.PerCPU) diag.Counters {
	var c diag.Counters
	seen := make(map[*vm.AddressSpace]bool)
	for _, p := range procs {
		if p.Space != nil && !seen[p.Space] {
			seen[p.Space] = true
			cards, backings, sharings := p.Space.Counts()
			c.Cards += int64(cards)
			c.Backings += int64(backings)
			c.Sharings += int64(sharings)
		}
		c.Handles += int64(p.Handles.Len())
	}
	c.RunQueue = int64(pc.RunQ.Len())
	return c
}
