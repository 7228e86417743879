// Package proc implements the process object: register file, ipc_state
// flags, handle table, pending-pulse set, and waiter queue (spec.md §3,
// §4.2 — component d).
//
// Grounded on the aggregate-struct shape of common.Proc_t seen across the
// example pack's kernel entry points (register file + flags + handle
// table in one value) and on vm.Vm_t's lock-guarded style, retained here
// as ambient idiom even though the single-CPU cooperative model (spec.md
// §5) makes Process's own state uncontended.
package proc

import (
	"kernel/internal/accnt"
	"kernel/internal/arch"
	"kernel/internal/defs"
	"kernel/internal/dlist"
	"kernel/internal/handle"
	"kernel/internal/vm"
)

// Process is one schedulable entity: its saved register frame, ipc_state
// flags, address space, handle table, and queue memberships.
type Process struct {
	ID    uint64
	Space *vm.AddressSpace
	Regs  arch.Regs
	Accnt accnt.Accnt_t

	Flags     defs.ProcFlags
	BlockedOn *Process
	Waiters   dlist.List[*Process]

	Handles        dlist.Map[uint64, *handle.Handle]
	PendingHandles dlist.List[*handle.Handle]

	FaultAddr uint64

	waiterElem *dlist.Elem[*Process] // this process's membership in some other process's Waiters
	queueElem  *dlist.Elem[*Process] // this process's membership in the run queue (internal/sched)
}

// New returns a freshly constructed, unqueued process.
func New(id uint64, space *vm.AddressSpace) *Process {
	return &Process{ID: id, Space: space}
}

// SetFlag ORs f into the process's flag set.
func (p *Process) SetFlag(f defs.ProcFlags) {
	p.Flags |= f
}

// ClearFlag clears f from the process's flag set.
func (p *Process) ClearFlag(f defs.ProcFlags) {
	p.Flags &^= f
}

// TestFlag reports whether every bit in f is set.
func (p *Process) TestFlag(f defs.ProcFlags) bool {
	return p.Flags&f == f
}

// IsQueued reports whether the process is on the run queue.
func (p *Process) IsQueued() bool {
	return p.TestFlag(defs.Queued)
}

// IsRunnable reports whether no ipc_state bit is set (spec.md §4.2).
func (p *Process) IsRunnable() bool {
	return p.Flags&defs.IpcState == 0
}

// QueueElem exposes the run-queue membership slot for internal/sched.
func (p *Process) QueueElem() *dlist.Elem[*Process] {
	return p.queueElem
}

// SetQueueElem records the run-queue membership slot for internal/sched.
func (p *Process) SetQueueElem(e *dlist.Elem[*Process]) {
	p.queueElem = e
}

// FindHandle looks up a handle by its local id.
func (p *Process) FindHandle(id uint64) (*handle.Handle, bool) {
	return p.Handles.Get(id)
}

// NewHandle inserts a fresh handle at id, pairing it with other if
// non-nil. Any existing handle at id is dissociated and replaced, unless
// it is already paired with other — in which case the call is a no-op
// that returns the existing handle (spec.md §4.2).
func (p *Process) NewHandle(id uint64, other *handle.Handle) *handle.Handle {
	if existing, ok := p.Handles.Get(id); ok {
		if other != nil && existing.Other == other {
			return existing
		}
		handle.Dissociate(existing)
	}
	h := handle.New(id, p)
	if other != nil {
		handle.Associate(h, other)
	}
	p.Handles.Set(id, h)
	return h
}

// DeleteHandle dissociates and removes the handle at id, if any.
func (p *Process) DeleteHandle(id uint64) {
	h, ok := p.Handles.Get(id)
	if !ok {
		return
	}
	handle.Dissociate(h)
	p.Handles.Delete(id)
}

// RenameHandle moves the handle at oldID to newID.
func (p *Process) RenameHandle(oldID, newID uint64) defs.Err_t {
	if oldID == newID {
		return defs.Success
	}
	h, ok := p.Handles.Get(oldID)
	if !ok {
		return defs.ESRCH
	}
	p.Handles.Delete(oldID)
	h.ID = newID
	p.Handles.Set(newID, h)
	return defs.Success
}

// AliasHandle creates a new local id in p that shares id's peer reference
// without pairing through it: hmod's copy operation (spec.md §4.6 NR 4)
// duplicates a handle's reach to the same remote process, not a second
// bidirectional pairing — the peer's Other still points only at the
// original handle. See DESIGN.md for why this sidesteps handle.Associate.
func (p *Process) AliasHandle(id, newID uint64) (*handle.Handle, defs.Err_t) {
	h, ok := p.Handles.Get(id)
	if !ok {
		return nil, defs.ESRCH
	}
	nh := handle.New(newID, p)
	nh.Other = h.Other
	p.Handles.Set(newID, nh)
	return nh, defs.Success
}

// AssocHandles creates a fresh handle idA in a and idB in b and pairs
// them, following spec.md §6's boot-time "associate pairwise handles"
// step and the general assoc_handles contract of spec.md §4.2.
func AssocHandles(a *Process, idA uint64, b *Process, idB uint64) (*handle.Handle, *handle.Handle) {
	ha := handle.New(idA, a)
	hb := handle.New(idB, b)
	handle.Associate(ha, hb)
	a.Handles.Set(idA, ha)
	b.Handles.Set(idB, hb)
	return ha, hb
}

// AddPendingHandle inserts h into p's pending-pulse set.
func (p *Process) AddPendingHandle(h *handle.Handle) {
	p.PendingHandles.PushBack(h)
}

// PopPendingHandle removes and returns some member of p's pending-pulse
// set, or ok=false if it is empty.
func (p *Process) PopPendingHandle() (*handle.Handle, bool) {
	return p.PendingHandles.PopFront()
}

// AddWaiter adds waiter to target's waiter list. Panics if waiter is
// already on some waiter list — a process may be on at most one
// (spec.md §3 invariant).
func AddWaiter(target, waiter *Process) {
	if waiter.waiterElem != nil {
		panic("proc: process already on a waiter list")
	}
	waiter.waiterElem = target.Waiters.PushBack(waiter)
	waiter.BlockedOn = target
}

// RemoveWaiter removes waiter from target's waiter list, if present.
func RemoveWaiter(target, waiter *Process) {
	if waiter.waiterElem == nil {
		return
	}
	target.Waiters.Remove(waiter.waiterElem)
	waiter.waiterElem = nil
	waiter.BlockedOn = nil
}
