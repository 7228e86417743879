package syscall

import (
	"testing"

	"kernel/internal/defs"
	"kernel/internal/frame"
	"kernel/internal/proc"
	"kernel/internal/sched"
	"kernel/internal/vm"
)

type fakePort struct {
	in8  uint8
	out8 uint8
	gotOut bool
}

func (f *fakePort) In8(uint16) uint8    { return f.in8 }
func (f *fakePort) In16(uint16) uint16  { return 0 }
func (f *fakePort) In32(uint16) uint32  { return 0 }
func (f *fakePort) Out8(_ uint16, v uint8) { f.out8 = v; f.gotOut = true }
func (f *fakePort) Out16(uint16, uint16) {}
func (f *fakePort) Out32(uint16, uint32) {}

func TestDispatchMapInstallsCard(t *testing.T) {
	as := &vm.AddressSpace{}
	p := proc.New(1, as)
	p.Regs.RAX = defs.SysMap
	p.Regs.RDI = 0                          // handle
	p.Regs.RSI = uint64(defs.FlagAnon | defs.FlagR | defs.FlagW)
	p.Regs.RDX = 0x300000                   // addr
	p.Regs.R10 = 0x300000                   // offset == addr: Off should be 0
	p.Regs.R8 = 0x1000                      // size

	Dispatch(&Env{}, sched.New(), p)

	card := as.CardAt(0x300000)
	if card.Off != 0 || card.Flags != defs.FlagAnon|defs.FlagR|defs.FlagW {
		t.Fatalf("card = %+v", card)
	}
	if p.Regs.RAX != 0 {
		t.Fatalf("RAX = %d, want 0 (offset-addr)", p.Regs.RAX)
	}
}

// TestDispatchMapDMASubstitutesEagerFrame covers spec.md §4.6 NR 1's DMA
// sentinel: a map with both Phys and Anon set must allocate a frame
// eagerly and substitute its physical address for the caller-supplied
// offset, rather than deferring allocation to a later page fault.
func TestDispatchMapDMASubstitutesEagerFrame(t *testing.T) {
	as := &vm.AddressSpace{}
	p := proc.New(1, as)
	p.Regs.RAX = defs.SysMap
	p.Regs.RDI = 0 // handle
	p.Regs.RSI = uint64(defs.FlagPhys | defs.FlagAnon | defs.FlagR | defs.FlagW)
	p.Regs.RDX = 0x300000 // addr
	p.Regs.R10 = 0x300000 // offset == addr, irrelevant: DMA substitutes it
	p.Regs.R8 = 0x1000    // size

	fr := frame.NewWithZeroer(nil, func(uint64) {}) // 0x900000 below is a fake frame number
	fr.Donate(0x900000)

	Dispatch(&Env{Frame: fr}, sched.New(), p)

	card := as.CardAt(0x300000)
	wantOff := int64(0x900000) - int64(0x300000)
	if card.Off != wantOff {
		t.Fatalf("card.Off = %d, want %d (substituted physical - addr)", card.Off, wantOff)
	}
	if p.Regs.RAX != uint64(wantOff) {
		t.Fatalf("RAX = %d, want %d", p.Regs.RAX, wantOff)
	}
}

// TestDispatchMapDMAExhaustionReturnsZero covers spec.md §7's policy
// failure: DMA frame allocation exhaustion returns 0 from map, not ENOMEM
// and not a card installed with the caller's unsubstituted offset.
func TestDispatchMapDMAExhaustionReturnsZero(t *testing.T) {
	as := &vm.AddressSpace{}
	p := proc.New(1, as)
	p.Regs.RAX = defs.SysMap
	p.Regs.RDI = 0
	p.Regs.RSI = uint64(defs.FlagPhys | defs.FlagAnon | defs.FlagR)
	p.Regs.RDX = 0x300000
	p.Regs.R10 = 0x300000
	p.Regs.R8 = 0x1000

	fr := frame.NewWithZeroer(nil, func(uint64) {}) // no frames donated: exhausted

	Dispatch(&Env{Frame: fr}, sched.New(), p)

	if p.Regs.RAX != 0 {
		t.Fatalf("RAX = %d, want 0 on DMA exhaustion", p.Regs.RAX)
	}
	if card := as.CardAt(0x300000); card.Handle != 0 || card.Flags != 0 {
		t.Fatalf("card = %+v, want the default zero card: no map_range on exhaustion", card)
	}
}

func TestDispatchHmodDeleteByDefault(t *testing.T) {
	p := proc.New(1, nil)
	p.NewHandle(5, nil)
	p.Regs.RAX = defs.SysHmod
	p.Regs.RDI = 5 // id
	p.Regs.RSI = 0 // rename = 0 -> delete
	p.Regs.RDX = 0 // copy = 0 -> no alias

	Dispatch(&Env{}, sched.New(), p)

	if _, ok := p.FindHandle(5); ok {
		t.Fatalf("handle 5 should have been deleted")
	}
	if p.Regs.RAX != uint64(defs.Success) {
		t.Fatalf("RAX = %d, want Success", p.Regs.RAX)
	}
}

func TestDispatchHmodRename(t *testing.T) {
	p := proc.New(1, nil)
	p.NewHandle(5, nil)
	p.Regs.RAX = defs.SysHmod
	p.Regs.RDI = 5
	p.Regs.RSI = 6 // rename to 6
	p.Regs.RDX = 0

	Dispatch(&Env{}, sched.New(), p)

	if _, ok := p.FindHandle(6); !ok {
		t.Fatalf("handle should have been renamed to 6")
	}
}

func TestDispatchPortioRoutesToBackend(t *testing.T) {
	port := &fakePort{}
	p := proc.New(1, nil)
	p.Regs.RAX = defs.SysPortio
	p.Regs.RDI = 0x3f8
	p.Regs.RSI = uint64(defs.PortioOut8)
	p.Regs.RDX = 0x42

	Dispatch(&Env{Port: port}, sched.New(), p)

	if !port.gotOut || port.out8 != 0x42 {
		t.Fatalf("port.Out8 not invoked with 0x42: %+v", port)
	}
}

// Unknown syscall numbers and an unwired port-I/O backend both route to
// diag.Abort, which halts forever rather than returning or panicking
// (spec.md §7) — not exercised here; internal/diag tests that path with a
// substitutable halt hook.
