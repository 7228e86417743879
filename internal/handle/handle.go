// Package handle implements the paired-handle graph connecting two
// processes (spec.md §3, §4.3 — component e): a handle is a local id in
// one process, optionally paired with its peer in another process, with a
// pending-pulse bitmask that accumulates while its owner cannot receive.
//
// Grounded on the paired-resource idiom of the teacher's fd/fd.go
// (Cwd_t/Fd_t: a value referencing another owned resource with explicit
// Reopen/Close lifecycle), generalized here to a *mutual* pairing rather
// than fd's one-directional reference.
package handle

// Handle is one endpoint of a communication channel. Owner is the process
// this handle's id is local to, kept as `any` so this package does not
// import internal/proc (which itself holds a table of *Handle — package
// handle stays the leaf). Callers type-assert it back to *proc.Process.
// Other is the paired handle on the far side, or nil if fresh (spec.md §3).
type Handle struct {
	ID    uint64
	Owner any
	Other *Handle

	pulses uint64
}

// New returns a fresh, unpaired handle with the given local id, owned by
// owner (the owning *proc.Process).
func New(id uint64, owner any) *Handle {
	return &Handle{ID: id, Owner: owner}
}

// Associate pairs h and g: sets h.Other = g and g.Other = h. Panics if
// either side is already paired — a contract violation (spec.md §4.3
// precondition).
func Associate(h, g *Handle) {
	if h.Other != nil || g.Other != nil {
		panic("handle: associate of already-paired handle")
	}
	h.Other = g
	g.Other = h
}

// Dissociate clears h's pairing and its peer's back-reference, if any.
func Dissociate(h *Handle) {
	if h.Other != nil {
		h.Other.Other = nil
	}
	h.Other = nil
}

// AddPulses OR-assigns mask into h's pending-pulse bitmask and returns the
// prior value. A 0 -> non-zero transition is the signal that h's owner
// must be added to its process's pending-pulse set (spec.md §4.3).
func (h *Handle) AddPulses(mask uint64) uint64 {
	prior := h.pulses
	h.pulses |= mask
	return prior
}

// PopPulses returns h's pending-pulse mask and clears it.
func (h *Handle) PopPulses() uint64 {
	m := h.pulses
	h.pulses = 0
	return m
}

// Fresh reports whether h has not yet been paired with a peer.
func (h *Handle) Fresh() bool {
	return h.Other == nil
}
