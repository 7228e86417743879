package vm

import (
	"testing"

	"kernel/internal/defs"
	"kernel/internal/frame"
)

// These tests exercise the card/backing/sharing bookkeeping in isolation,
// using a bare AddressSpace literal rather than NewAddressSpace: the
// constructor (and AddPTE) dereference the address space's physical PML4
// frame through pageAt, which requires an address space wired up to real
// or emulated physical memory — out of reach for a plain unit test. No test
// in this repository calls NewAddressSpace or AddPTE; internal/boot's
// Bootstrap is their caller at boot time.

func TestMapCardSetOverwritesInPlace(t *testing.T) {
	as := &AddressSpace{}
	as.MapCardSet(0x1000, 0, 0, defs.FlagR)
	as.MapCardSet(0x1000, 5, 8, defs.FlagR|defs.FlagW)

	c := as.CardAt(0x1000)
	if c.Handle != 5 || c.Off != 8 || c.Flags != defs.FlagR|defs.FlagW {
		t.Fatalf("CardAt = %+v, want overwritten card", c)
	}
}

func TestCardAtDefaultsToZeroCard(t *testing.T) {
	as := &AddressSpace{}
	c := as.CardAt(0x1000)
	if c != (Card{}) {
		t.Fatalf("CardAt on empty space = %+v, want zero card", c)
	}
}

// TestMapRangeS1CardShape reproduces the card layout scenario S1 depends
// on: an anon card at V covers the faulting address exactly.
func TestMapRangeS1CardShape(t *testing.T) {
	as := &AddressSpace{}
	as.MapRange(0x200000, 0x201000, 0, 0, defs.FlagAnon|defs.FlagR|defs.FlagW)

	c := as.CardAt(0x200000)
	if c.Flags != defs.FlagAnon|defs.FlagR|defs.FlagW {
		t.Fatalf("card at start = %+v", c)
	}
	// past the end, behavior reverts to whatever was effectively there
	// before (nothing here), i.e. the zero card.
	tail := as.CardAt(0x201000)
	if tail != (Card{}) {
		t.Fatalf("card past end = %+v, want zero card", tail)
	}
}

func TestMapRangeIdempotent(t *testing.T) {
	as := &AddressSpace{}
	as.MapRange(0x1000, 0x2000, 7, 3, defs.FlagR)
	before := as.CardAt(0x1000)
	beforeTail := as.CardAt(0x2000)

	as.MapRange(0x1000, 0x2000, 7, 3, defs.FlagR)
	if as.CardAt(0x1000) != before || as.CardAt(0x2000) != beforeTail {
		t.Fatalf("map_range not idempotent")
	}
}

func TestMapRangePreservesTailBehavior(t *testing.T) {
	as := &AddressSpace{}
	// pre-existing card covering a large region
	as.MapCardSet(0x0, 0, 0, defs.FlagR|defs.FlagW)
	// carve out [0x1000, 0x2000) with different flags
	as.MapRange(0x1000, 0x2000, 0, 0, defs.FlagR|defs.FlagX)

	if c := as.CardAt(0x1800); c.Flags != defs.FlagR|defs.FlagX {
		t.Fatalf("interior card = %+v", c)
	}
	if c := as.CardAt(0x2500); c.Flags != defs.FlagR|defs.FlagW {
		t.Fatalf("tail card reverted to %+v, want original R|W", c)
	}
}

func TestFindAddBackingAnon(t *testing.T) {
	as := &AddressSpace{}
	as.MapCardSet(0x200000, 0, 0, defs.FlagAnon|defs.FlagR|defs.FlagW)
	// NewWithZeroer, not New: 0x300000 is a fake frame number, not memory
	// this test process may dereference — frame_test.go's TestNewZeroesForReal
	// covers the real unsafe zero-fill against an actual buffer instead.
	fr := frame.NewWithZeroer(nil, func(uint64) {})
	fr.Donate(0x300000)

	b, errc := as.FindAddBacking(0x200000, fr)
	if errc != defs.Success {
		t.Fatalf("FindAddBacking errc = %v", errc)
	}
	if b.Kind != BackingPhys || b.Phys != 0x300000 {
		t.Fatalf("backing = %+v, want Phys backing at 0x300000", b)
	}
	if b.Flags&defs.FlagPhys == 0 {
		t.Fatalf("anon backing should gain FlagPhys once installed")
	}

	// second call returns the same backing, not a fresh allocation.
	b2, errc := as.FindAddBacking(0x200000, fr)
	if errc != defs.Success || b2 != b {
		t.Fatalf("FindAddBacking not idempotent: %+v, %v", b2, errc)
	}
}

func TestFindAddBackingAnonExhaustion(t *testing.T) {
	as := &AddressSpace{}
	as.MapCardSet(0x200000, 0, 0, defs.FlagAnon|defs.FlagR)
	fr := frame.New(nil) // no frames available

	_, errc := as.FindAddBacking(0x200000, fr)
	if errc != defs.ENOMEM {
		t.Fatalf("errc = %v, want ENOMEM", errc)
	}
}

// TestFindAddBackingPhysS2 reproduces scenario S2: a Phys card resolves
// directly to V+O without touching the frame allocator.
func TestFindAddBackingPhysS2(t *testing.T) {
	as := &AddressSpace{}
	as.MapCardSet(0x100000, 0, 0x050000, defs.FlagPhys|defs.FlagR|defs.FlagX)

	b, errc := as.FindAddBacking(0x101000, frame.New(nil))
	if errc != defs.Success {
		t.Fatalf("errc = %v", errc)
	}
	if b.Phys != 0x101000+0x050000 {
		t.Fatalf("phys = %#x, want %#x", b.Phys, uint64(0x101000+0x050000))
	}
}

func TestFindAddBackingNoMappingPanics(t *testing.T) {
	as := &AddressSpace{}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unmapped address")
		}
	}()
	as.FindAddBacking(0xdeadb000, frame.New(nil))
}

func TestFindAddBackingNoAccessPanics(t *testing.T) {
	as := &AddressSpace{}
	as.MapCardSet(0x1000, 0, 0, 0) // F = empty set: no R/W/X
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for card with no access flags")
		}
	}()
	as.FindAddBacking(0x1000, frame.New(nil))
}

func TestFindAddBackingHandledElsewhereReturnsEPERM(t *testing.T) {
	as := &AddressSpace{}
	as.MapCardSet(0x1000, 2, 0, defs.FlagR)
	_, errc := as.FindAddBacking(0x1000, frame.New(nil))
	if errc != defs.EPERM {
		t.Fatalf("errc = %v, want EPERM (route through IPC fault path)", errc)
	}
}

// TestShareAndAddSharedBacking reproduces scenario S4's share/attach step.
func TestShareAndAddSharedBacking(t *testing.T) {
	owner := &AddressSpace{}
	owner.MapCardSet(0x400000, 0, 0, defs.FlagAnon|defs.FlagR|defs.FlagW)
	fr := frame.NewWithZeroer(nil, func(uint64) {}) // 0x777000 below is a fake frame number
	fr.Donate(0x777000)

	s, errc := owner.ShareBacking(0x400000, fr)
	if errc != defs.Success {
		t.Fatalf("ShareBacking errc = %v", errc)
	}
	if s.Phys != 0x777000 || s.Owner != owner {
		t.Fatalf("sharing = %+v", s)
	}

	faulter := &AddressSpace{}
	b := faulter.AddSharedBacking(0x200000, defs.FlagR, s)
	if b.ResolvePhys() != 0x777000 {
		t.Fatalf("shared backing resolves to %#x, want 0x777000", b.ResolvePhys())
	}
	if s.Children.Len() != 1 || s.Children.Front().Value != b {
		t.Fatalf("sharing children = %+v, want [b]", s.Children)
	}

	b.Detach()
	if s.Children.Len() != 0 {
		t.Fatalf("sharing children after Detach = %d, want 0", s.Children.Len())
	}
}

func TestCounts(t *testing.T) {
	as := &AddressSpace{}
	as.MapCardSet(0x400000, 0, 0, defs.FlagAnon|defs.FlagR|defs.FlagW)
	fr := frame.NewWithZeroer(nil, func(uint64) {}) // 0x777000 below is a fake frame number
	fr.Donate(0x777000)

	if _, errc := as.FindAddBacking(0x400000, fr); errc != defs.Success {
		t.Fatalf("FindAddBacking errc = %v", errc)
	}
	if _, errc := as.ShareBacking(0x400000, fr); errc != defs.Success {
		t.Fatalf("ShareBacking errc = %v", errc)
	}

	cards, backings, sharings := as.Counts()
	if cards != 1 || backings != 1 || sharings != 1 {
		t.Fatalf("Counts = (%d, %d, %d), want (1, 1, 1)", cards, backings, sharings)
	}
}
