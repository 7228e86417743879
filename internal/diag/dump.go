// dump.go holds the debug-dump helpers: Dump, the snapshot of
// per-component counters that the portio debug-dump path (syscall 7,
// D_PROF device) writes, and Disasm, a disassembler for the bytes around a
// fault RIP, which no path of this core calls. Mirrors the teacher's
// bprof_t/sizedump diagnostic dumps in kernel/main.go, but serializes
// through a real pprof.Profile encoder (github.com/google/pprof/profile)
// and a real disassembler (golang.org/x/arch/x86/x86asm) instead of a
// hand-rolled hexdump — see DESIGN.md for why these two are the one place
// in this core that wants them. Abort calls neither.
package diag

import (
	"io"

	"github.com/google/pprof/profile"
	"golang.org/x/arch/x86/x86asm"
)

// Counters is the set of per-component sizes the debug dump samples:
// mapping-card, backing, sharing and handle counts, and run-queue depth
// (spec.md §2 components a, c, d, f).
type Counters struct {
	Cards    int64
	Backings int64
	Sharings int64
	Handles  int64
	RunQueue int64
}

var counterNames = [...]string{"cards", "backings", "sharings", "handles", "runqueue"}

// Dump encodes snap as a single-sample pprof profile (one value per
// counter, unit "count") and writes the gzip-compressed proto to w.
func Dump(w io.Writer, snap Counters) error {
	values := []int64{snap.Cards, snap.Backings, snap.Sharings, snap.Handles, snap.RunQueue}

	fn := &profile.Function{ID: 1, Name: "kernel.Counters", SystemName: "kernel.Counters"}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: fn, Line: 1}}}

	sampleTypes := make([]*profile.ValueType, len(counterNames))
	for i, name := range counterNames {
		sampleTypes[i] = &profile.ValueType{Type: name, Unit: "count"}
	}

	p := &profile.Profile{
		SampleType: sampleTypes,
		Sample: []*profile.Sample{
			{Location: []*profile.Location{loc}, Value: values},
		},
		Location: []*profile.Location{loc},
		Function: []*profile.Function{fn},
	}
	return p.Write(w)
}

// Disasm renders the instructions in code (a snippet of executable memory
// around a faulting RIP) starting at virtual address pc, one instruction
// per returned line, stopping at the first decode error.
func Disasm(code []byte, pc uint64) []string {
	var lines []string
	for len(code) > 0 {
		inst, err := x86asm.Decode(code, 64)
		if err != nil {
			break
		}
		lines = append(lines, x86asm.GNUSyntax(inst, pc, nil))
		code = code[inst.Len:]
		pc += uint64(inst.Len)
	}
	return lines
}
