// Package vm implements the per-process address space: sparse mapping
// cards, single-page backings, sharing nodes, and the hardware page-table
// construction that realizes them (spec.md §3, §4.1 — component c).
//
// Grounded on the teacher's vm/as.go (Vm_t: a mutex-guarded struct wrapping
// the page tables and the fault-handling operations) and mem/dmap.go (the
// PML4/PDP/PD/PT frame construction and the Kents kernel-slot bookkeeping,
// generalized here into the "PML4[511] always maps the kernel PDP"
// invariant spec.md §8 names).
package vm

import (
	"sync"

	"kernel/internal/defs"
	"kernel/internal/dlist"
	"kernel/internal/frame"
)

// Card describes a contiguous virtual range in one address space: a handle
// (0 = kernel-provided backing), a signed page-aligned offset, and an
// access-flag set. A card at key V covers [V, V') where V' is the next
// card's key in the same space.
type Card struct {
	Handle uint64
	Off    int64
	Flags  defs.MapFlags
}

// BackingKind distinguishes a directly-installed physical page from one
// reached through a Sharing node.
type BackingKind int

const (
	BackingPhys BackingKind = iota
	BackingShared
)

// Backing represents one physical page already installed in one process.
type Backing struct {
	Vaddr   uint64
	Flags   defs.MapFlags
	Kind    BackingKind
	Phys    uint64   // valid when Kind == BackingPhys
	Sharing *Sharing // valid when Kind == BackingShared

	elem *dlist.Elem[*Backing] // membership in Sharing.Children
}

// ResolvePhys returns the physical frame address this backing maps to,
// regardless of whether it is a direct or a shared backing.
func (b *Backing) ResolvePhys() uint64 {
	if b.Kind == BackingShared {
		return b.Sharing.Phys
	}
	return b.Phys
}

// Detach removes b from its Sharing's children list. A no-op for
// non-shared backings. Call before discarding a shared backing so the
// Sharing's invariant (every child's parent_ref is the Sharing, spec.md §8
// inv. 5) holds for whatever remains.
func (b *Backing) Detach() {
	if b.Kind == BackingShared && b.elem != nil {
		b.Sharing.Children.Remove(b.elem)
		b.elem = nil
	}
}

// Sharing ties one physical page to every Backing, in any address space,
// that observes it.
type Sharing struct {
	Phys     uint64
	Owner    *AddressSpace
	Children dlist.List[*Backing]
}

// AddressSpace owns the root PML4, the attached-process count, and the
// cards/backings/sharings maps for one process's virtual memory.
type AddressSpace struct {
	mu sync.Mutex

	cr3  uint64 // physical address of the PML4
	refs int

	cards    dlist.Map[uint64, Card]
	backings dlist.Map[uint64, *Backing]
	sharings dlist.List[*Sharing]
}

var (
	kernelPDP    uint64
	kernelPDPSet bool
)

// SetKernelPDP installs the physical address of the shared kernel PDP that
// every address space's PML4[511] must point at (spec.md §8 invariant 3).
// The architecture glue (out of scope, §1) builds this PDP once at boot;
// call this exactly once before the first NewAddressSpace.
func SetKernelPDP(phys uint64) {
	kernelPDP = phys
	kernelPDPSet = true
}

// NewAddressSpace allocates a fresh PML4 with the kernel half installed.
func NewAddressSpace(fr *frame.Allocator) *AddressSpace {
	if !kernelPDPSet {
		panic("vm: kernel PDP not installed")
	}
	p, ok := fr.Alloc()
	if !ok {
		panic("vm: out of frames for new PML4")
	}
	pml4 := pageAt(p)
	for i := range pml4 {
		pml4[i] = 0
	}
	pml4[defs.KernSlot] = kernelPDP | defs.PteP | defs.PteW
	return &AddressSpace{cr3: p}
}

// Attach records one more process using this address space.
func (as *AddressSpace) Attach() {
	as.mu.Lock()
	as.refs++
	as.mu.Unlock()
}

// Detach records one fewer process using this address space. The address
// space is never freed while the count is above zero (spec.md §3); tearing
// down the last reference is not specified in the core.
func (as *AddressSpace) Detach() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.refs--
	return as.refs
}

// CR3 returns the physical address of the PML4.
func (as *AddressSpace) CR3() uint64 {
	return as.cr3
}

// Counts returns the number of live cards, backings, and sharings, for
// the diagnostic dump (spec.md §1b).
func (as *AddressSpace) Counts() (cards, backings, sharings int) {
	return as.cards.Len(), as.backings.Len(), as.sharings.Len()
}

// MapCardSet sets (or replaces in place) the card at page-aligned v.
func (as *AddressSpace) MapCardSet(v uint64, h uint64, o int64, f defs.MapFlags) {
	as.cards.Set(v, Card{Handle: h, Off: o, Flags: f})
}

// MapRange implements spec.md §4.1's map_range: re-key the tail of the
// region at end with whatever was effectively there before, clear the
// interior, then install the new card at start.
func (as *AddressSpace) MapRange(start, end uint64, h uint64, o int64, f defs.MapFlags) {
	_, floor, ok := as.cards.Floor(end)
	eff := Card{}
	if ok {
		eff = floor
	}
	next := Card{Handle: h, Off: o, Flags: f}
	if eff == next {
		as.cards.Delete(end)
	} else {
		as.cards.Set(end, eff)
	}
	as.cards.DeleteRange(start, end)
	as.cards.Set(start, next)
}

// CardAt returns the effective card covering v: the greatest-key-<=v card,
// or the zero card (H=0, O=0, F=∅) if none exists.
func (as *AddressSpace) CardAt(v uint64) Card {
	_, c, ok := as.cards.Floor(v)
	if !ok {
		return Card{}
	}
	return c
}

// FindAddBacking returns the existing backing at page-aligned v, or
// creates one per spec.md §4.1. A card with a non-zero handle cannot be
// served here — EPERM tells the caller to route through the IPC
// page-fault flow (internal/ipc) instead.
func (as *AddressSpace) FindAddBacking(v uint64, fr *frame.Allocator) (*Backing, defs.Err_t) {
	if b, ok := as.backings.Get(v); ok {
		return b, defs.Success
	}
	_, card, ok := as.cards.Floor(v)
	if !ok {
		panic("vm: find_add_backing: no mapping")
	}
	if card.Flags&(defs.FlagR|defs.FlagW|defs.FlagX) == 0 {
		panic("vm: find_add_backing: no access")
	}
	if card.Handle != 0 {
		return nil, defs.EPERM
	}

	var b *Backing
	switch {
	case card.Flags&defs.FlagAnon != 0 && card.Flags&defs.FlagPhys != 0:
		b = &Backing{Vaddr: v, Flags: card.Flags, Kind: BackingPhys,
			Phys: uint64(int64(v) + card.Off)}
	case card.Flags&defs.FlagAnon != 0:
		p, ok := fr.Alloc()
		if !ok {
			return nil, defs.ENOMEM
		}
		b = &Backing{Vaddr: v, Flags: card.Flags | defs.FlagPhys,
			Kind: BackingPhys, Phys: p}
	case card.Flags&defs.FlagPhys != 0:
		b = &Backing{Vaddr: v, Flags: card.Flags, Kind: BackingPhys,
			Phys: uint64(int64(v) + card.Off)}
	default:
		panic("vm: find_add_backing: card has neither Anon nor Phys")
	}
	as.backings.Set(v, b)
	return b, defs.Success
}

// ShareBacking ensures a backing at v, then allocates and returns a
// Sharing node recording its physical page and this address space as the
// owner. The caller typically passes the result to another space's
// AddSharedBacking.
func (as *AddressSpace) ShareBacking(v uint64, fr *frame.Allocator) (*Sharing, defs.Err_t) {
	b, errc := as.FindAddBacking(v, fr)
	if errc != defs.Success {
		return nil, errc
	}
	s := &Sharing{Phys: b.ResolvePhys(), Owner: as}
	as.sharings.PushBack(s)
	return s, defs.Success
}

// AddSharedBacking creates a Backing at v with flags f, parented to
// Sharing s, and appends it to s's children.
func (as *AddressSpace) AddSharedBacking(v uint64, f defs.MapFlags, s *Sharing) *Backing {
	b := &Backing{Vaddr: v, Flags: f, Kind: BackingShared, Sharing: s}
	b.elem = s.Children.PushBack(b)
	as.backings.Set(v, b)
	return b
}
