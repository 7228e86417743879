package vm

import (
	"unsafe"

	"kernel/internal/defs"
	"kernel/internal/frame"
)

// pageAt dereferences a physical frame address as a 512-entry page table,
// the same unsafe.Pointer(uintptr) idiom the teacher's mem/dmap.go uses in
// Dmaplen/caddr once the direct map is installed (out of scope, §1) —
// this is the core's one chokepoint for touching physical memory directly.
func pageAt(phys uint64) *[512]uint64 {
	return (*[512]uint64)(unsafe.Pointer(uintptr(phys)))
}

// pgIndices splits a virtual address into its four 9-bit page-table
// indices, following the teacher's pgbits shift-by-(12+9c) scheme.
func pgIndices(v uint64) (l4, l3, l2, l1 int) {
	idx := func(shift uint) int { return int((v >> shift) & 0x1ff) }
	return idx(39), idx(30), idx(21), idx(12)
}

// descend walks one level of the page-table tree, creating a zeroed child
// frame installed Present|User|Writable if the slot was empty.
func descend(tbl *[512]uint64, idx int, fr *frame.Allocator) (*[512]uint64, defs.Err_t) {
	e := tbl[idx]
	if e&defs.PteP != 0 {
		return pageAt(e &^ uint64(defs.PgMask)), defs.Success
	}
	p, ok := fr.Alloc()
	if !ok {
		return nil, defs.ENOMEM
	}
	child := pageAt(p)
	for i := range child {
		child[i] = 0
	}
	tbl[idx] = p | defs.PteP | defs.PteU | defs.PteW
	return child, defs.Success
}

// AddPTE installs a page-table entry for v, creating any missing
// intermediate PDP/PD/PT frames. Idempotent: re-installing the same entry
// leaves the tree unchanged; it always overwrites whatever was at that
// slot (spec.md §4.1).
func (as *AddressSpace) AddPTE(v uint64, pte uint64, fr *frame.Allocator) defs.Err_t {
	l4, l3, l2, l1 := pgIndices(v)
	pml4 := pageAt(as.cr3)

	pdp, errc := descend(pml4, l4, fr)
	if errc != defs.Success {
		return errc
	}
	pd, errc := descend(pdp, l3, fr)
	if errc != defs.Success {
		return errc
	}
	pt, errc := descend(pd, l2, fr)
	if errc != defs.Success {
		return errc
	}
	pt[l1] = pte
	return defs.Success
}
