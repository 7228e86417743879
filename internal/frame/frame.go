// Package frame provides zeroed 4 KiB physical frames to the rest of the
// kernel and takes them back. It is the façade named in spec.md §2
// component b, grounded on the teacher's Physmem_t/pcpuphys_t pattern
// (biscuit/src/mem/mem.go): a small per-CPU cache absorbs the common
// alloc/free traffic so the single global free list only gets touched on
// cache misses — ambient style kept even though spec.md §5's one-logical-
// CPU model means there's exactly one cache instance in practice.
package frame

import (
	"sync"
	"unsafe"

	"kernel/internal/arch"
	"kernel/internal/defs"
)

// cacheSize bounds the per-CPU free-frame cache, mirroring Biscuit's
// pcpuphys_t batching constant.
const cacheSize = 32

// Allocator hands out and reclaims physical frames.
type Allocator struct {
	mu   sync.Mutex
	free []uint64 // global free list of physical frame addresses

	cache []uint64 // per-CPU cache; refilled/drained against free under mu

	src  arch.Frame0  // black-box source for frames not yet donated
	zero func(uint64) // clears one frame in place before Alloc hands it out
}

// New returns an Allocator drawing fallback frames from src, zeroing every
// frame it hands out through the real unsafe.Pointer dereference (spec.md
// §2 component b: "provides zeroed 4 KiB frames").
func New(src arch.Frame0) *Allocator {
	return &Allocator{src: src, zero: zeroFrame}
}

// NewWithZeroer is New, but with the frame-clearing step supplied by the
// caller instead of the real unsafe dereference — the same closure-
// injection idiom internal/sched's SwitchTo/Idle use for resume/halt.
// Physical frames in this core are identity-addressed, so a caller
// exercising Alloc against frame numbers that are not backed by real
// memory (every test outside this package that donates a literal address
// like 0x300000) must supply a no-op or recording zeroer here instead of
// dereferencing it for real.
func NewWithZeroer(src arch.Frame0, zero func(phys uint64)) *Allocator {
	return &Allocator{src: src, zero: zero}
}

// Donate adds a physical frame to the global free list. Used during boot
// (internal/boot.Populate) to hand the allocator every usable frame the
// boot contract describes.
func (a *Allocator) Donate(phys uint64) {
	a.mu.Lock()
	a.free = append(a.free, phys)
	a.mu.Unlock()
}

// zeroFrame clears one physical frame in place, the same
// unsafe.Pointer(uintptr) idiom vm/pagetable.go's pageAt uses for page
// tables — here applied to a frame's raw bytes rather than its PTE view.
// Every frame Alloc hands out must read back as zero (spec.md §2
// component b, scenario S1: "First access to V ... Read at V+0 returns
// 0x00"), whether it is fresh from src or reused from a Free'd frame.
func zeroFrame(phys uint64) {
	page := (*[defs.PgSize]byte)(unsafe.Pointer(uintptr(phys)))
	for i := range page {
		page[i] = 0
	}
}

// Alloc returns one zeroed physical frame, or ok=false if none remain —
// the caller converts that into ENOMEM or panics per spec.md §5's
// exhaustion policy, Alloc itself never chooses which.
func (a *Allocator) Alloc() (uint64, bool) {
	if len(a.cache) == 0 {
		a.refill()
	}
	if len(a.cache) == 0 {
		if a.src != nil {
			if p, ok := a.src.Frame0(); ok {
				a.zero(p)
				return p, true
			}
		}
		return 0, false
	}
	n := len(a.cache) - 1
	p := a.cache[n]
	a.cache = a.cache[:n]
	a.zero(p)
	return p, true
}

// Free returns a physical frame to the cache (or, once the cache is full,
// back to the global free list).
func (a *Allocator) Free(phys uint64) {
	if len(a.cache) < cacheSize {
		a.cache = append(a.cache, phys)
		return
	}
	a.mu.Lock()
	a.free = append(a.free, phys)
	a.mu.Unlock()
}

func (a *Allocator) refill() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.cache) < cacheSize && len(a.free) > 0 {
		n := len(a.free) - 1
		a.cache = append(a.cache, a.free[n])
		a.free = a.free[:n]
	}
}

// Avail reports the total number of frames immediately available (cache
// plus global free list), for diagnostics only — never used for an
// allocation decision, since it can go stale the instant it's read on a
// multi-CPU build.
func (a *Allocator) Avail() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cache) + len(a.free)
}

// PgSize re-exports defs.PgSize for callers that only import frame.
const PgSize = defs.PgSize
