// Package boot consumes the boot contract spec.md §6 describes (produced
// by the out-of-scope 32-bit trampoline, §1): memory ranges, an optional
// command line, and the module list. It donates usable RAM to the frame
// allocator and constructs the initial per-module processes, pairwise
// handles, and IRQ-process selection.
//
// Grounded on justanotherdot-biscuit's main() boot sequencing
// (phys_init -> dmap_init -> device attach -> first process) and the
// teacher's common.Proc_t construction in kernel/main.go, generalized from
// "one init process" to "one process per boot module".
package boot

import (
	"kernel/internal/defs"
	"kernel/internal/frame"
	"kernel/internal/proc"
	"kernel/internal/sched"
	"kernel/internal/vm"
)

// Range describes one entry of the boot memory map.
type Range struct {
	Base, Length uint64
	Usable       bool
}

// Module describes one boot module: a loaded program image's physical
// extent and a human-readable description string.
type Module struct {
	Start, End uint64
	Describe   string
}

// Info is the boot contract: memory ranges, optional command line, and
// the module list.
type Info struct {
	Ranges  []Range
	Cmdline string
	Modules []Module
}

const (
	// kernelLoadBase is the fixed virtual address every module's image is
	// linked to run at (spec.md §6's initial process layout).
	kernelLoadBase = 0x100000
	pageMask       = 0xfff
)

// Populate donates every 4 KiB frame of usable RAM inside
// [memStart, memEnd) to fr, following spec.md §6's boot-time frame
// allocator seeding step.
func Populate(fr *frame.Allocator, info *Info, memStart, memEnd uint64) {
	for _, r := range info.Ranges {
		if !r.Usable {
			continue
		}
		base, end := r.Base, r.Base+r.Length
		if base < memStart {
			base = memStart
		}
		if end > memEnd {
			end = memEnd
		}
		for p := base &^ uint64(defs.PgMask); p+defs.PgSize <= end; p += defs.PgSize {
			if p < base {
				continue
			}
			fr.Donate(p)
		}
	}
}

// layout builds the three cards spec.md §6 specifies for a module loaded
// at [start, end), and returns the stack/instruction pointers to seed the
// process's register file with.
func layout(as *vm.AddressSpace, start, end uint64) (sp, ip uint64) {
	startPage := start &^ uint64(defs.PgMask)
	endAligned := (end + defs.PgMask) &^ uint64(defs.PgMask)

	as.MapCardSet(0x0FF000, 0, 0, defs.FlagAnon|defs.FlagR|defs.FlagW)
	as.MapCardSet(kernelLoadBase, 0, int64(startPage)-kernelLoadBase,
		defs.FlagPhys|defs.FlagR|defs.FlagX)
	as.MapCardSet(kernelLoadBase+(endAligned-startPage), 0, 0, 0)

	sp = kernelLoadBase
	ip = kernelLoadBase + (start & pageMask)
	return sp, ip
}

// Bootstrap constructs one process per boot module with the spec.md §6
// layout, associates pairwise handles between every unordered pair of
// modules (module i gets handle j pointing at module j, and vice versa,
// 1-based indices), selects module #1 as the IRQ process, and queues all
// of them for the scheduler to run.
func Bootstrap(fr *frame.Allocator, pc *sched.PerCPU, info *Info) []*proc.Process {
	procs := make([]*proc.Process, len(info.Modules))
	for i, m := range info.Modules {
		as := vm.NewAddressSpace(fr)
		as.Attach()
		p := proc.New(uint64(i+1), as)
		p.Regs.RSP, p.Regs.RIP = layout(as, m.Start, m.End)
		procs[i] = p
	}

	for i := 0; i < len(procs); i++ {
		for j := i + 1; j < len(procs); j++ {
			idA := uint64(j + 1)
			idB := uint64(i + 1)
			proc.AssocHandles(procs[i], idA, procs[j], idB)
		}
	}

	if len(procs) > 0 {
		pc.IRQProcess = procs[0]
	}
	for _, p := range procs {
		pc.Queue(p)
	}
	return procs
}
